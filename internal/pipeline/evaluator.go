// Package pipeline orchestrates the full token evaluation flow:
// consensus, scoring, risk analysis and the final buy decision,
// with persistence of the resulting record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"token-scout/internal/consensus"
	"token-scout/internal/decision"
	"token-scout/internal/domain"
	"token-scout/internal/idhash"
	"token-scout/internal/observability"
	"token-scout/internal/risk"
	"token-scout/internal/scoring"
	"token-scout/internal/storage"
)

// Evaluator runs the evaluation pipeline for one token snapshot.
type Evaluator struct {
	router    *consensus.Router
	assembler *scoring.Assembler
	analyzer  *risk.Analyzer
	engine    *decision.Engine

	evaluations storage.EvaluationStore   // optional
	history     storage.ScoreHistoryStore // optional
	logger      *log.Logger
	clock       func() time.Time
}

// EvaluatorOption customizes an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithStores wires persistence. Either store may be nil.
func WithStores(evaluations storage.EvaluationStore, history storage.ScoreHistoryStore) EvaluatorOption {
	return func(e *Evaluator) {
		e.evaluations = evaluations
		e.history = history
	}
}

// WithClock sets a custom clock. Used by tests.
func WithClock(clock func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		e.clock = clock
	}
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(router *consensus.Router, engine *decision.Engine, logger *log.Logger, opts ...EvaluatorOption) *Evaluator {
	if logger == nil {
		logger = log.Default()
	}
	e := &Evaluator{
		router:    router,
		assembler: scoring.NewAssembler(),
		analyzer:  risk.NewAnalyzer(),
		engine:    engine,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the full pipeline for one snapshot and persists the
// result. The input is not mutated. Risk analysis runs concurrently
// with the provider round trip since both only read the snapshot.
func (e *Evaluator) Evaluate(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.EvaluationRecord, error) {
	if snapshot == nil || snapshot.Mint == "" {
		return nil, storage.ErrInvalidInput
	}
	start := e.clock()

	snap := *snapshot
	snap.Normalize()
	if snap.DiscoveredAt == 0 {
		snap.DiscoveredAt = start.UnixMilli()
	}

	riskCh := make(chan *domain.RiskAnalysis, 1)
	go func() {
		riskCh <- e.analyzer.Analyze(&snap)
	}()

	cons, err := e.router.GetConsensus(ctx, &snap)
	if err != nil {
		observability.RecordEvaluation("consensus_failed", e.clock().Sub(start).Seconds())
		return nil, fmt.Errorf("consensus for %s: %w", snap.Mint, err)
	}
	riskAnalysis := <-riskCh

	breakdown := e.assembler.Assemble(&snap, cons)
	dec := e.engine.Decide(&snap, breakdown, riskAnalysis)

	now := e.clock()
	rec := &domain.EvaluationRecord{
		EvaluationID: idhash.ComputeEvaluationID(snap.Mint, snap.DiscoveredAt),
		Mint:         snap.Mint,
		Symbol:       snap.Symbol,
		Snapshot:     snap,
		Consensus:    *cons,
		Breakdown:    *breakdown,
		Risk:         *riskAnalysis,
		Decision:     *dec,
		EvaluatedAt:  now.UnixMilli(),
		CreatedAt:    now.UnixMilli(),
	}

	if err := e.persist(ctx, rec); err != nil {
		observability.RecordEvaluation("store_failed", e.clock().Sub(start).Seconds())
		return nil, err
	}

	observability.RecordEvaluation("ok", e.clock().Sub(start).Seconds())
	observability.RecordDecision(dec.Buy, string(dec.RiskLevel))
	e.logger.Printf("[PIPELINE] evaluated %s (%s): score=%d confidence=%.1f buy=%v",
		rec.Mint, rec.Symbol, breakdown.FinalScore, dec.Confidence, dec.Buy)

	return rec, nil
}

// persist writes the record and its history point. A duplicate record
// means the same (mint, discovered_at) was already evaluated; that is
// logged and not treated as a failure.
func (e *Evaluator) persist(ctx context.Context, rec *domain.EvaluationRecord) error {
	if e.evaluations != nil {
		if err := e.evaluations.Insert(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				e.logger.Printf("[PIPELINE] duplicate evaluation %s for %s, keeping original", rec.EvaluationID, rec.Mint)
				return nil
			}
			return fmt.Errorf("store evaluation %s: %w", rec.EvaluationID, err)
		}
	}

	if e.history != nil {
		point := &domain.ScorePoint{
			EvaluationID: rec.EvaluationID,
			Mint:         rec.Mint,
			Symbol:       rec.Symbol,
			FinalScore:   rec.Breakdown.FinalScore,
			Confidence:   rec.Decision.Confidence,
			ProbDelta:    rec.Consensus.ProbDelta,
			RiskLevel:    rec.Risk.Level,
			Buy:          rec.Decision.Buy,
			TimestampMs:  rec.EvaluatedAt,
		}
		if err := e.history.Append(ctx, []*domain.ScorePoint{point}); err != nil {
			// History is analytical; a failed append must not lose the evaluation.
			e.logger.Printf("[PIPELINE] append score history for %s: %v", rec.Mint, err)
		}
	}

	return nil
}
