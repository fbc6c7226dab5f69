package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-scout/internal/consensus"
	"token-scout/internal/decision"
	"token-scout/internal/domain"
	"token-scout/internal/idhash"
	"token-scout/internal/provider"
	"token-scout/internal/storage/memory"
)

type stubAdapter struct {
	name  string
	score domain.AiScore
	err   error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) GetScore(_ context.Context, _ *domain.TokenSnapshot) (*domain.ModelResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ModelResponse{
		Provider:  s.name,
		Score:     s.score,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

var _ provider.Adapter = (*stubAdapter)(nil)

func optimisticScore() domain.AiScore {
	return domain.AiScore{
		Probability: 0.7, RiskTier: domain.RiskTierLow,
		ROIP50: 1.8, ROIP90: 5.0, Reasoning: "strong flow and deep liquidity",
	}
}

func newTestEvaluator(a, b provider.Adapter, opts ...EvaluatorOption) *Evaluator {
	logger := log.New(io.Discard, "", 0)
	router := consensus.NewRouter(a, b, consensus.DefaultConfig(), logger)
	engine := decision.NewEngine(decision.DefaultCriteria())
	return NewEvaluator(router, engine, logger, opts...)
}

func liquidSnapshot() *domain.TokenSnapshot {
	return &domain.TokenSnapshot{
		Mint: "So11111111111111111111111111111111111111112",
		Name: "Solid", Symbol: "SOLID", PriceUSD: 0.0002,
		MarketCapUSD: 400000, LiquidityUSD: 55000, Volume24hUSD: 120000,
		TxnsPerHour: 60, AgeHours: 30,
		UniqueBuyers: 90, BuyerSellerRatio: 1.8, WhaleShare: 0.1,
		DiscoveredAt: 1_700_000_000_000,
	}
}

func TestEvaluate_FullRunPersists(t *testing.T) {
	evalStore := memory.NewEvaluationStore()
	histStore := memory.NewScoreHistoryStore()
	a := &stubAdapter{name: "groq", score: optimisticScore()}
	b := &stubAdapter{name: "gemini", score: optimisticScore()}
	ev := newTestEvaluator(a, b, WithStores(evalStore, histStore))

	snap := liquidSnapshot()
	rec, err := ev.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	wantID := idhash.ComputeEvaluationID(snap.Mint, snap.DiscoveredAt)
	assert.Equal(t, wantID, rec.EvaluationID)
	assert.Greater(t, rec.Breakdown.FinalScore, 0)
	assert.Len(t, rec.Consensus.Responses, 2)

	stored, err := evalStore.GetByID(context.Background(), wantID)
	require.NoError(t, err)
	assert.Equal(t, rec.Breakdown.FinalScore, stored.Breakdown.FinalScore)

	points, err := histStore.GetByMint(context.Background(), snap.Mint)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, wantID, points[0].EvaluationID)
	assert.Equal(t, rec.Decision.Buy, points[0].Buy)
}

func TestEvaluate_InputNotMutated(t *testing.T) {
	a := &stubAdapter{name: "groq", score: optimisticScore()}
	b := &stubAdapter{name: "gemini", score: optimisticScore()}
	ev := newTestEvaluator(a, b)

	snap := liquidSnapshot()
	snap.LiquidityUSD = -500
	snap.WhaleShare = 3.0

	rec, err := ev.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	// Caller's snapshot keeps its raw values; the record holds the
	// normalized copy.
	assert.Equal(t, -500.0, snap.LiquidityUSD)
	assert.Equal(t, 0.0, rec.Snapshot.LiquidityUSD)
	assert.Equal(t, 1.0, rec.Snapshot.WhaleShare)
}

func TestEvaluate_DuplicateRecordTolerated(t *testing.T) {
	evalStore := memory.NewEvaluationStore()
	a := &stubAdapter{name: "groq", score: optimisticScore()}
	b := &stubAdapter{name: "gemini", score: optimisticScore()}
	ev := newTestEvaluator(a, b, WithStores(evalStore, nil))

	snap := liquidSnapshot()
	_, err := ev.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	// Same mint and discovery time hashes to the same ID; the rerun
	// must not fail.
	rec, err := ev.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	all, err := evalStore.GetByMint(context.Background(), snap.Mint)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEvaluate_DualProviderFailure(t *testing.T) {
	a := &stubAdapter{name: "groq", err: errors.New("boom")}
	b := &stubAdapter{name: "gemini", err: errors.New("boom")}
	ev := newTestEvaluator(a, b)

	_, err := ev.Evaluate(context.Background(), liquidSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, consensus.ErrConsensusUnavailable)
}

func TestEvaluate_SingleFailureStillEvaluates(t *testing.T) {
	a := &stubAdapter{name: "groq", score: optimisticScore()}
	b := &stubAdapter{name: "gemini", err: errors.New("timeout")}
	ev := newTestEvaluator(a, b)

	rec, err := ev.Evaluate(context.Background(), liquidSnapshot())
	require.NoError(t, err)

	synthetic := 0
	for _, r := range rec.Consensus.Responses {
		if r.Synthetic {
			synthetic++
		}
	}
	assert.Equal(t, 1, synthetic)
	// Synthetic fallback carries HIGH risk, which dominates the merge.
	assert.Equal(t, domain.RiskTierHigh, rec.Consensus.Merged.RiskTier)
}

func TestEvaluate_RejectsEmptyMint(t *testing.T) {
	a := &stubAdapter{name: "groq", score: optimisticScore()}
	b := &stubAdapter{name: "gemini", score: optimisticScore()}
	ev := newTestEvaluator(a, b)

	_, err := ev.Evaluate(context.Background(), &domain.TokenSnapshot{})
	assert.Error(t, err)
}

func TestEvaluate_MissingDiscoveryTimeDefaults(t *testing.T) {
	fixed := time.UnixMilli(1_800_000_000_000).UTC()
	a := &stubAdapter{name: "groq", score: optimisticScore()}
	b := &stubAdapter{name: "gemini", score: optimisticScore()}
	ev := newTestEvaluator(a, b, WithClock(func() time.Time { return fixed }))

	snap := liquidSnapshot()
	snap.DiscoveredAt = 0

	rec, err := ev.Evaluate(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), rec.Snapshot.DiscoveredAt)
	assert.Equal(t, idhash.ComputeEvaluationID(snap.Mint, fixed.UnixMilli()), rec.EvaluationID)
}
