package domain

// RiskLevel is the discrete outcome of the heuristic risk pass.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// Categorical health signals derived alongside the safety score.
// Used for display and for the decision engine's flag interpretation.
const (
	LiquidityGood   = "good"
	LiquidityMedium = "medium"
	LiquidityLow    = "low"

	DistributionHealthy     = "healthy"
	DistributionConcerning  = "concerning"
	DistributionCentralized = "centralized"

	ActivityOrganic    = "organic"
	ActivitySuspicious = "suspicious"
	ActivityBotDriven  = "bot-driven"
)

// RiskAnalysis is the output of the heuristic safety check.
type RiskAnalysis struct {
	Level    RiskLevel // LOW >= 70, MEDIUM >= 50, HIGH >= 30, else EXTREME
	Score    int       // 0-100 safety score, starts at 100 and only decreases
	Flags    []string  // hard flags, in detection order
	Warnings []string  // soft warnings, no score impact

	Liquidity    string // good | medium | low
	Distribution string // healthy | concerning | centralized
	Activity     string // organic | suspicious | bot-driven
}
