package consensus

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-scout/internal/domain"
	"token-scout/internal/observability"
	"token-scout/internal/provider"
)

// stubAdapter returns a fixed score or error.
type stubAdapter struct {
	name  string
	score domain.AiScore
	err   error
	delay time.Duration
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) GetScore(ctx context.Context, _ *domain.TokenSnapshot) (*domain.ModelResponse, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ModelResponse{
		Provider:  s.name,
		Score:     s.score,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

func newTestRouter(a, b provider.Adapter) *Router {
	return NewRouter(a, b, DefaultConfig(), log.New(io.Discard, "", 0))
}

func fullSnapshot() *domain.TokenSnapshot {
	return &domain.TokenSnapshot{
		PriceUSD: 0.001, MarketCapUSD: 100000, LiquidityUSD: 40000,
		Volume24hUSD: 20000, TxnsPerHour: 30, UniqueBuyers: 40,
	}
}

func TestGetConsensus_IdenticalScores(t *testing.T) {
	score := domain.AiScore{Probability: 0.8, RiskTier: domain.RiskTierLow, ROIP50: 0.2, ROIP90: 0.5, Reasoning: "good flow"}
	router := newTestRouter(
		&stubAdapter{name: "groq", score: score},
		&stubAdapter{name: "gemini", score: score},
	)

	result, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.ProbDelta)
	assert.Equal(t, 0.8, result.Merged.Probability)
	assert.Equal(t, domain.RiskTierLow, result.Merged.RiskTier)
	assert.InDelta(t, 0.2, result.Merged.ROIP50, 1e-9, "geometric mean of equal values is the value")
	assert.InDelta(t, 0.5, result.Merged.ROIP90, 1e-9)
	require.Len(t, result.Responses, 2)
	assert.False(t, result.Responses[0].Synthetic)
	assert.False(t, result.Responses[1].Synthetic)
}

func TestGetConsensus_SmallDeltaAverages(t *testing.T) {
	router := newTestRouter(
		&stubAdapter{name: "groq", score: domain.AiScore{Probability: 0.6, RiskTier: domain.RiskTierLow}},
		&stubAdapter{name: "gemini", score: domain.AiScore{Probability: 0.8, RiskTier: domain.RiskTierMedium}},
	)

	result, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.NoError(t, err)

	assert.InDelta(t, 0.2, result.ProbDelta, 1e-9)
	assert.InDelta(t, 0.7, result.Merged.Probability, 1e-9, "within threshold: exact mean")
	assert.Equal(t, domain.RiskTierMedium, result.Merged.RiskTier, "conservative-max risk merge")
}

func TestGetConsensus_LargeDeltaBiasesLow(t *testing.T) {
	router := newTestRouter(
		&stubAdapter{name: "groq", score: domain.AiScore{Probability: 0.2, RiskTier: domain.RiskTierHigh}},
		&stubAdapter{name: "gemini", score: domain.AiScore{Probability: 0.9, RiskTier: domain.RiskTierLow}},
	)

	result, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.NoError(t, err)

	delta := 0.7
	want := 0.2 + (0.9-0.2)*(1-delta)
	assert.InDelta(t, delta, result.ProbDelta, 1e-9)
	assert.InDelta(t, want, result.Merged.Probability, 1e-9)

	// Merged probability stays within [min, max].
	assert.GreaterOrEqual(t, result.Merged.Probability, 0.2)
	assert.LessOrEqual(t, result.Merged.Probability, 0.9)
	assert.Less(t, result.Merged.Probability, (0.2+0.9)/2, "disagreement pulls down, not up")
}

func TestGetConsensus_GeometricROIMerge(t *testing.T) {
	router := newTestRouter(
		&stubAdapter{name: "groq", score: domain.AiScore{Probability: 0.5, RiskTier: domain.RiskTierLow, ROIP50: 0.1, ROIP90: 0.4}},
		&stubAdapter{name: "gemini", score: domain.AiScore{Probability: 0.5, RiskTier: domain.RiskTierLow, ROIP50: 0.9, ROIP90: 0.8}},
	)

	result, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt(0.1*0.9), result.Merged.ROIP50, 1e-9)
	assert.InDelta(t, math.Sqrt(0.4*0.8), result.Merged.ROIP90, 1e-9)

	// AM-GM: geometric mean never exceeds the arithmetic mean.
	assert.LessOrEqual(t, result.Merged.ROIP50, (0.1+0.9)/2)
	assert.LessOrEqual(t, result.Merged.ROIP90, (0.4+0.8)/2)
}

func TestGetConsensus_SingleFailureSynthetic(t *testing.T) {
	router := newTestRouter(
		&stubAdapter{name: "groq", err: &provider.ProviderError{Provider: "groq", Kind: provider.KindTransport, Err: errors.New("dial tcp: timeout")}},
		&stubAdapter{name: "gemini", score: domain.AiScore{Probability: 0.9, RiskTier: domain.RiskTierLow, ROIP50: 0.3, ROIP90: 0.6}},
	)

	fallbacks := observability.DefaultMetrics.SyntheticFallback.WithLabelValues("groq")
	before := testutil.ToFloat64(fallbacks)

	result, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(fallbacks))

	require.True(t, result.Responses[0].Synthetic)
	assert.Equal(t, "groq", result.Responses[0].Provider)
	assert.Equal(t, 0.1, result.Responses[0].Score.Probability)
	assert.Contains(t, result.Responses[0].Score.Reasoning, "unavailable")

	// The synthetic HIGH fallback dominates Gemini's LOW.
	assert.Equal(t, domain.RiskTierHigh, result.Merged.RiskTier)
	// ROI geometric mean with a zero fallback collapses to zero.
	assert.Equal(t, 0.0, result.Merged.ROIP50)
}

func TestGetConsensus_DualFailure(t *testing.T) {
	router := newTestRouter(
		&stubAdapter{name: "groq", err: errors.New("groq down")},
		&stubAdapter{name: "gemini", err: errors.New("gemini down")},
	)

	_, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.ErrorIs(t, err, ErrConsensusUnavailable)
	assert.Contains(t, err.Error(), "groq down")
	assert.Contains(t, err.Error(), "gemini down")
}

func TestGetConsensus_FailureDoesNotBlockOther(t *testing.T) {
	// The failing adapter errors instantly; the slow one still gets
	// its full answer in (all-settled join, no fail-fast cancel).
	router := newTestRouter(
		&stubAdapter{name: "groq", err: errors.New("immediate failure")},
		&stubAdapter{name: "gemini", delay: 30 * time.Millisecond, score: domain.AiScore{Probability: 0.7, RiskTier: domain.RiskTierMedium}},
	)

	result, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.NoError(t, err)
	assert.False(t, result.Responses[1].Synthetic)
	assert.Equal(t, 0.7, result.Responses[1].Score.Probability)
}

func TestConfidence_CompletenessAndAgreement(t *testing.T) {
	score := domain.AiScore{Probability: 0.5, RiskTier: domain.RiskTierLow}
	router := newTestRouter(
		&stubAdapter{name: "groq", score: score},
		&stubAdapter{name: "gemini", score: score},
	)

	full, err := router.GetConsensus(context.Background(), fullSnapshot())
	require.NoError(t, err)

	sparse, err := router.GetConsensus(context.Background(), &domain.TokenSnapshot{})
	require.NoError(t, err)

	assert.Greater(t, full.Confidence, sparse.Confidence, "more data means more trust")
	assert.LessOrEqual(t, full.Confidence, 1.0)
	assert.GreaterOrEqual(t, sparse.Confidence, 0.0)

	// Full agreement and full data hits base + both bonuses.
	cfg := DefaultConfig()
	assert.InDelta(t, cfg.BaseConfidence+cfg.AgreementWeight+cfg.CompletenessWeight, full.Confidence, 1e-9)
}

func TestSummarizeReasoning_DedupAndCap(t *testing.T) {
	merged := summarizeReasoning("Strong volume. Low liquidity.", "strong volume. New wallet inflow.")
	assert.Contains(t, merged, "Strong volume")
	assert.Contains(t, merged, "Low liquidity")
	assert.Contains(t, merged, "New wallet inflow")
	assert.Equal(t, 1, countOccurrences(merged, "trong volume"), "duplicates removed case-insensitively")

	long := summarizeReasoning(repeat("unique point about the token market structure number"), repeat("another angle on holder distribution and flow"))
	assert.LessOrEqual(t, len(long), MaxSummaryLen)
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func repeat(prefix string) string {
	out := ""
	for i := 0; i < 40; i++ {
		out += prefix + " " + string(rune('a'+i%26)) + ". "
	}
	return out
}
