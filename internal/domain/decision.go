package domain

// BuyDecision is the final trade recommendation for one snapshot.
type BuyDecision struct {
	Buy        bool      // recommendation
	Confidence float64   // 0-100 weighted confidence
	Reasons    []string  // human-readable reasons, in evaluation order
	RiskLevel  RiskLevel // carried over from RiskAnalysis

	PositionSizeSOL float64 // suggested size in the base trading asset
	MaxEntryPrice   float64 // max acceptable entry price in USD
	StopLossPct     float64 // stop-loss distance, percent
	TakeProfitPct   float64 // take-profit target, percent (capped at 200)
}
