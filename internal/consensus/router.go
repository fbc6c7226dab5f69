// Package consensus merges independent AI provider opinions into one
// conservative estimate.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"token-scout/internal/domain"
	"token-scout/internal/observability"
	"token-scout/internal/provider"
)

// ErrConsensusUnavailable is returned when every provider failed.
// Single-provider failures are recovered via the synthetic fallback.
var ErrConsensusUnavailable = errors.New("consensus unavailable: all providers failed")

// Synthetic fallback values for a failed provider. The low probability
// and HIGH risk signal distrust through the score itself, keeping the
// downstream math well-defined.
const (
	fallbackProbability = 0.1
	// MaxSummaryLen caps the merged reasoning summary.
	MaxSummaryLen = 800
)

// Config tunes the merge and confidence math.
type Config struct {
	// DisagreementThreshold is the probability delta above which the
	// merge biases toward the lower estimate instead of averaging.
	DisagreementThreshold float64
	// BaseConfidence is the confidence floor before bonuses.
	BaseConfidence float64
	// AgreementWeight scales the (1 - probDelta) agreement bonus.
	AgreementWeight float64
	// CompletenessWeight scales the data-completeness bonus.
	CompletenessWeight float64
}

// DefaultConfig returns tuned defaults.
func DefaultConfig() Config {
	return Config{
		DisagreementThreshold: 0.3,
		BaseConfidence:        0.5,
		AgreementWeight:       0.3,
		CompletenessWeight:    0.2,
	}
}

// Router calls both adapters concurrently and reduces their opinions.
type Router struct {
	adapters [2]provider.Adapter
	config   Config
	logger   *log.Logger
}

// NewRouter creates a Router over exactly two adapters.
func NewRouter(a, b provider.Adapter, config Config, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(os.Stdout, "[consensus] ", log.LstdFlags)
	}
	return &Router{adapters: [2]provider.Adapter{a, b}, config: config, logger: logger}
}

// GetConsensus obtains both opinions and merges them.
//
// The two calls run concurrently and are joined all-settled: one
// provider's failure never cancels the other's in-flight call. A single
// failure is substituted with a synthetic low-trust score; only a dual
// failure surfaces as ErrConsensusUnavailable.
func (r *Router) GetConsensus(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.ConsensusResult, error) {
	type settled struct {
		resp *domain.ModelResponse
		err  error
	}

	results := make([]settled, 2)
	var wg sync.WaitGroup
	for i, adapter := range r.adapters {
		wg.Add(1)
		go func(i int, adapter provider.Adapter) {
			defer wg.Done()
			resp, err := adapter.GetScore(ctx, snapshot)
			results[i] = settled{resp: resp, err: err}
		}(i, adapter)
	}
	wg.Wait()

	if results[0].err != nil && results[1].err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConsensusUnavailable,
			errors.Join(results[0].err, results[1].err))
	}

	responses := make([]domain.ModelResponse, 2)
	for i, res := range results {
		if res.err != nil {
			r.logger.Printf("WARN: provider %s failed, using synthetic fallback: %v",
				r.adapters[i].Name(), res.err)
			observability.RecordSyntheticFallback(r.adapters[i].Name())
			responses[i] = syntheticResponse(r.adapters[i].Name(), res.err)
			continue
		}
		responses[i] = *res.resp
	}

	merged, probDelta := r.merge(responses[0].Score, responses[1].Score)
	confidence := r.confidence(probDelta, snapshot)
	observability.RecordConsensus(probDelta)

	return &domain.ConsensusResult{
		Responses:  responses,
		Merged:     merged,
		ProbDelta:  probDelta,
		Confidence: confidence,
	}, nil
}

// syntheticResponse builds the low-trust stand-in for a failed provider.
func syntheticResponse(providerName string, cause error) domain.ModelResponse {
	return domain.ModelResponse{
		Provider: providerName,
		Score: domain.AiScore{
			Probability: fallbackProbability,
			RiskTier:    domain.RiskTierHigh,
			ROIP50:      0,
			ROIP90:      0,
			Reasoning:   fmt.Sprintf("provider %s unavailable: %v", providerName, cause),
		},
		Timestamp: time.Now().UnixMilli(),
		Synthetic: true,
	}
}

// merge reduces two scores into the conservative estimate.
func (r *Router) merge(a, b domain.AiScore) (domain.AiScore, float64) {
	probDelta := math.Abs(a.Probability - b.Probability)

	low, high := a.Probability, b.Probability
	if low > high {
		low, high = high, low
	}

	var prob float64
	if probDelta > r.config.DisagreementThreshold {
		// Disagreement pulls the estimate toward the lower opinion in
		// proportion to the delta, never up.
		prob = low + (high-low)*(1-probDelta)
	} else {
		prob = (a.Probability + b.Probability) / 2
	}

	risk := a.RiskTier
	if b.RiskTier.Rank() > a.RiskTier.Rank() {
		risk = b.RiskTier
	}

	return domain.AiScore{
		Probability: domain.Clamp(prob, 0, 1),
		RiskTier:    risk,
		ROIP50:      geoMean(a.ROIP50, b.ROIP50),
		ROIP90:      geoMean(a.ROIP90, b.ROIP90),
		Reasoning:   summarizeReasoning(a.Reasoning, b.Reasoning),
	}, probDelta
}

// confidence is the base constant plus agreement and data-completeness
// bonuses, clamped to [0,1].
func (r *Router) confidence(probDelta float64, snapshot *domain.TokenSnapshot) float64 {
	agreement := (1 - probDelta) * r.config.AgreementWeight
	completeness := float64(snapshot.Completeness()) / domain.KeyFieldCount * r.config.CompletenessWeight
	return domain.Clamp(r.config.BaseConfidence+agreement+completeness, 0, 1)
}

// geoMean is the geometric mean, more conservative than arithmetic
// when the estimates diverge.
func geoMean(a, b float64) float64 {
	if a < 0 || b < 0 {
		return 0
	}
	return math.Sqrt(a * b)
}

// summarizeReasoning compresses both reasoning strings into a
// deduplicated bullet summary capped at MaxSummaryLen characters.
func summarizeReasoning(a, b string) string {
	seen := make(map[string]struct{})
	var bullets []string
	for _, text := range []string{a, b} {
		for _, frag := range splitFragments(text) {
			key := strings.ToLower(frag)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			bullets = append(bullets, "- "+frag)
		}
	}

	summary := strings.Join(bullets, "\n")
	if len(summary) > MaxSummaryLen {
		summary = summary[:MaxSummaryLen]
	}
	return summary
}

// splitFragments breaks free text into sentence-ish fragments.
func splitFragments(text string) []string {
	var out []string
	for _, frag := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == ';' || r == '\n'
	}) {
		frag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(frag), "-"))
		if frag != "" {
			out = append(out, frag)
		}
	}
	return out
}
