// Package risk runs the independent heuristic safety pass over raw
// snapshot counters. Its output is consumed by the decision engine,
// not blended into the assembled score.
package risk

import (
	"fmt"
	"strings"

	"token-scout/internal/domain"
)

// Fixed penalties. The safety score starts at 100 and is only ever
// reduced; warnings carry no score change.
const (
	penaltyNoLiquidity   = 30
	penaltyThinLiquidity = 15
	penaltyNoBuyers      = 40
	penaltySingleBuyer   = 25
	penaltySellerFlow    = 20
	penaltyScamKeyword   = 25
	penaltyLongSymbol    = 10

	// Level cutoffs on the 0-100 safety score.
	cutoffLow    = 70
	cutoffMedium = 50
	cutoffHigh   = 30
)

// scamKeywords flag names/symbols that mimic giveaway and rug patterns.
var scamKeywords = []string{"scam", "rug", "free", "airdrop", "presale", "whitelist", "giveaway", "test"}

// Analyzer performs the heuristic risk pass. Stateless.
type Analyzer struct{}

// NewAnalyzer creates a risk analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze never fails: every input is optional and out-of-range values
// were clamped at the pipeline boundary.
func (a *Analyzer) Analyze(s *domain.TokenSnapshot) *domain.RiskAnalysis {
	score := 100
	var flags, warnings []string

	switch {
	case s.LiquidityUSD < 500:
		score -= penaltyNoLiquidity
		flags = append(flags, fmt.Sprintf("very low initial liquidity ($%.0f)", s.LiquidityUSD))
	case s.LiquidityUSD < 5000:
		score -= penaltyThinLiquidity
		flags = append(flags, fmt.Sprintf("thin liquidity ($%.0f)", s.LiquidityUSD))
	}

	switch s.UniqueBuyers {
	case 0:
		score -= penaltyNoBuyers
		flags = append(flags, "no buyers")
	case 1:
		score -= penaltySingleBuyer
		flags = append(flags, "single buyer concentration")
	}

	// Seller-dominated flow is only damning without organic buyer
	// diversity backing it.
	if s.BuyerSellerRatio < 1.0 && s.UniqueBuyers < 10 {
		score -= penaltySellerFlow
		flags = append(flags, "seller-dominated flow without buyer diversity")
	}

	if kw := matchScamKeyword(s.Name, s.Symbol); kw != "" {
		score -= penaltyScamKeyword
		flags = append(flags, fmt.Sprintf("scam keyword %q in name/symbol", kw))
	}

	if len(s.Symbol) > 10 {
		score -= penaltyLongSymbol
		flags = append(flags, fmt.Sprintf("unusually long symbol (%d chars)", len(s.Symbol)))
	}

	if s.WhaleShare >= 0.3 {
		warnings = append(warnings, fmt.Sprintf("whale-sized entries (%.0f%% of volume)", s.WhaleShare*100))
	}
	if s.MarketCapUSD > 0 && s.MarketCapUSD < 10000 {
		warnings = append(warnings, "very low market cap")
	}
	if s.MarketCapUSD > 10_000_000 {
		warnings = append(warnings, "unusually high market cap for a new token")
	}

	// An off-curve address is program-derived: a pool or vault showing
	// up where a mint belongs. Unvalidatable mints are handled upstream.
	if info, err := domain.ValidateMint(s.Mint); err == nil && !info.OnCurve {
		warnings = append(warnings, "off-curve mint address (program-derived)")
	}

	if score < 0 {
		score = 0
	}

	return &domain.RiskAnalysis{
		Level:        levelFor(score),
		Score:        score,
		Flags:        flags,
		Warnings:     warnings,
		Liquidity:    liquiditySignal(s),
		Distribution: distributionSignal(s),
		Activity:     activitySignal(s),
	}
}

// levelFor maps the safety score to a discrete level via fixed cutoffs.
func levelFor(score int) domain.RiskLevel {
	switch {
	case score >= cutoffLow:
		return domain.RiskLow
	case score >= cutoffMedium:
		return domain.RiskMedium
	case score >= cutoffHigh:
		return domain.RiskHigh
	default:
		return domain.RiskExtreme
	}
}

func matchScamKeyword(name, symbol string) string {
	haystack := strings.ToLower(name + " " + symbol)
	for _, kw := range scamKeywords {
		if strings.Contains(haystack, kw) {
			return kw
		}
	}
	return ""
}

func liquiditySignal(s *domain.TokenSnapshot) string {
	switch {
	case s.LiquidityUSD >= 20000:
		return domain.LiquidityGood
	case s.LiquidityUSD >= 5000:
		return domain.LiquidityMedium
	default:
		return domain.LiquidityLow
	}
}

func distributionSignal(s *domain.TokenSnapshot) string {
	switch {
	case s.WhaleShare <= 0.2 && s.UniqueBuyers >= 25:
		return domain.DistributionHealthy
	case s.WhaleShare <= 0.5:
		return domain.DistributionConcerning
	default:
		return domain.DistributionCentralized
	}
}

func activitySignal(s *domain.TokenSnapshot) string {
	// High cadence from a handful of wallets looks like wash trading.
	if s.TxnsPerHour >= 100 && s.UniqueBuyers < 10 {
		return domain.ActivityBotDriven
	}
	if s.UniqueBuyers >= 20 && s.BuyerSellerRatio >= 1.0 {
		return domain.ActivityOrganic
	}
	return domain.ActivitySuspicious
}
