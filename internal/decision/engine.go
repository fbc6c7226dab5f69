// Package decision combines the assembled score, risk analysis and
// live market data into the final trade recommendation.
package decision

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"token-scout/internal/domain"
)

// Component weights of the final confidence.
const (
	weightAIScore    = 0.4
	weightMarketData = 0.3
	weightRisk       = 0.2
	weightMetaTrend  = 0.1

	maxTakeProfitPct = 200
)

// Engine produces BuyDecisions. Criteria updates are safe under
// concurrent evaluations.
type Engine struct {
	mu       sync.RWMutex
	criteria Criteria
}

// NewEngine creates an engine with the given criteria.
func NewEngine(criteria Criteria) *Engine {
	return &Engine{criteria: criteria}
}

// UpdateCriteria replaces the thresholds live.
func (e *Engine) UpdateCriteria(criteria Criteria) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.criteria = criteria
}

// Criteria returns a copy of the current thresholds.
func (e *Engine) Criteria() Criteria {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.criteria
}

// Decide evaluates one token. Buy requires BOTH the weighted
// confidence threshold and the basic filter gate; neither can override
// the other.
func (e *Engine) Decide(snapshot *domain.TokenSnapshot, breakdown *domain.ScoreBreakdown, risk *domain.RiskAnalysis) *domain.BuyDecision {
	c := e.Criteria()

	ai := aiComponent(breakdown)
	market := marketComponent(snapshot)
	riskComp := riskComponent(snapshot, risk)
	meta := metaComponent(snapshot, c.TrendingKeywords)

	confidence := weightAIScore*ai + weightMarketData*market + weightRisk*riskComp + weightMetaTrend*meta

	var reasons []string
	reasons = append(reasons, fmt.Sprintf("weighted confidence %.1f (ai=%.0f market=%.0f risk=%.0f trend=%.0f)",
		confidence, ai, market, riskComp, meta))

	filtersPass := true
	fail := func(format string, args ...any) {
		filtersPass = false
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	if breakdown.FinalScore < c.MinAIScore {
		fail("score %d below minimum %d", breakdown.FinalScore, c.MinAIScore)
	}
	if snapshot.LiquidityUSD < c.MinLiquidityUSD {
		fail("liquidity $%.0f below minimum $%.0f", snapshot.LiquidityUSD, c.MinLiquidityUSD)
	}
	if snapshot.MarketCapUSD > c.MaxMarketCapUSD {
		fail("market cap $%.0f above maximum $%.0f", snapshot.MarketCapUSD, c.MaxMarketCapUSD)
	}
	if snapshot.Volume24hUSD < c.MinVolume24hUSD {
		fail("24h volume $%.0f below minimum $%.0f", snapshot.Volume24hUSD, c.MinVolume24hUSD)
	}

	if confidence < c.MinConfidence {
		reasons = append(reasons, fmt.Sprintf("confidence %.1f below threshold %.1f", confidence, c.MinConfidence))
	} else if filtersPass {
		reasons = append(reasons, "all basic filters passed")
	}

	for _, flag := range risk.Flags {
		reasons = append(reasons, "risk: "+flag)
	}

	buy := confidence >= c.MinConfidence && filtersPass

	dec := &domain.BuyDecision{
		Buy:        buy,
		Confidence: confidence,
		Reasons:    reasons,
		RiskLevel:  risk.Level,
	}

	if buy {
		dec.PositionSizeSOL = positionSize(c, confidence, snapshot.LiquidityUSD)
		dec.MaxEntryPrice = snapshot.PriceUSD * (1 + c.MaxEntryPremium)
		dec.StopLossPct, dec.TakeProfitPct = exitLevels(confidence)
	}
	return dec
}

// aiComponent buckets the assembled final score into 0-100.
func aiComponent(b *domain.ScoreBreakdown) float64 {
	switch {
	case b.FinalScore >= 80:
		return 100
	case b.FinalScore >= 70:
		return 85
	case b.FinalScore >= 60:
		return 70
	case b.FinalScore >= 50:
		return 55
	case b.FinalScore >= 40:
		return 40
	default:
		return 20
	}
}

// marketComponent buckets liquidity, volume, momentum and market cap
// into 0-100.
func marketComponent(s *domain.TokenSnapshot) float64 {
	score := 0.0

	switch {
	case s.LiquidityUSD >= 50000:
		score += 30
	case s.LiquidityUSD >= 25000:
		score += 25
	case s.LiquidityUSD >= 10000:
		score += 15
	case s.LiquidityUSD >= 5000:
		score += 5
	}

	switch {
	case s.Volume24hUSD >= 100000:
		score += 25
	case s.Volume24hUSD >= 50000:
		score += 20
	case s.Volume24hUSD >= 20000:
		score += 15
	case s.Volume24hUSD >= 5000:
		score += 8
	}

	switch {
	case s.BuyerSellerRatio >= 1.5:
		score += 25
	case s.BuyerSellerRatio >= 1.2:
		score += 18
	case s.BuyerSellerRatio >= 1.0:
		score += 10
	}

	switch {
	case s.MarketCapUSD >= 20000 && s.MarketCapUSD <= 2_000_000:
		score += 20
	case s.MarketCapUSD >= 10000 && s.MarketCapUSD <= 5_000_000:
		score += 10
	}

	return score
}

// riskComponent starts at 100 and deducts per risk flag and for thin
// transaction activity.
func riskComponent(s *domain.TokenSnapshot, risk *domain.RiskAnalysis) float64 {
	score := 100.0
	score -= float64(len(risk.Flags)) * 15

	switch {
	case s.TxnsPerHour < 5:
		score -= 20
	case s.TxnsPerHour < 20:
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	return score
}

// metaComponent rewards membership in a trending category.
func metaComponent(s *domain.TokenSnapshot, trending []string) float64 {
	haystack := strings.ToLower(s.Name + " " + s.Symbol)
	for _, kw := range trending {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return 90
		}
	}
	return 40
}

// positionSize shrinks with thinning liquidity independent of
// confidence.
func positionSize(c Criteria, confidence, liquidityUSD float64) float64 {
	liquidityFactor := 1.0
	if c.LiquidityNormUSD > 0 {
		liquidityFactor = math.Min(1, liquidityUSD/c.LiquidityNormUSD)
	}
	return c.MaxPositionSOL * (confidence / 100) * liquidityFactor
}

// exitLevels are confidence-tiered: the stop tightens and the target
// rises with confidence, take-profit capped at 200%.
func exitLevels(confidence float64) (stopLossPct, takeProfitPct float64) {
	switch {
	case confidence >= 85:
		return 12, maxTakeProfitPct
	case confidence >= 70:
		return 15, 150
	case confidence >= 55:
		return 20, 100
	default:
		return 25, 50
	}
}
