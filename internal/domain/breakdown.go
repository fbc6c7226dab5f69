package domain

// ScoreBreakdown holds the deterministic subscores and the blended final
// score. Derived purely from TokenSnapshot + ConsensusResult.
type ScoreBreakdown struct {
	MarketScore  int // 0-40: liquidity, volume/mcap, txn cadence, age
	SocialScore  int // 0-30: social telemetry, or on-chain proxy capped at 10
	OnChainScore int // 0-30: buyers, buy/sell ratio, whale concentration
	AIBonus      int // round(consensus probability * 15)

	FinalScore int     // weighted blend, capped at 100
	Confidence float64 // consensus confidence reduced by data quality and disagreement
}
