package decision

// Criteria are the externally configurable thresholds of the engine.
// Defaults are tuned values; every field may be overridden at
// construction and updated live via Engine.UpdateCriteria.
type Criteria struct {
	// MinConfidence is the weighted-confidence buy threshold (0-100).
	MinConfidence float64

	// Basic filter gate. A failed filter vetoes a buy regardless of
	// how high the weighted confidence is.
	MinAIScore      int     // minimum assembled final score
	MinLiquidityUSD float64 // minimum pool liquidity
	MaxMarketCapUSD float64 // maximum market cap
	MinVolume24hUSD float64 // minimum 24h volume

	// Sizing.
	MaxPositionSOL   float64 // max position per token, in SOL
	LiquidityNormUSD float64 // liquidity level at which sizing stops shrinking

	// MaxEntryPremium is the accepted premium over the snapshot price.
	MaxEntryPremium float64

	// TrendingKeywords feed the meta-trend component: tokens whose
	// name/symbol match a trending category get the membership bonus.
	TrendingKeywords []string
}

// DefaultCriteria returns the tuned defaults.
func DefaultCriteria() Criteria {
	return Criteria{
		MinConfidence:    55,
		MinAIScore:       60,
		MinLiquidityUSD:  10000,
		MaxMarketCapUSD:  5_000_000,
		MinVolume24hUSD:  5000,
		MaxPositionSOL:   0.5,
		LiquidityNormUSD: 25000,
		MaxEntryPremium:  0.05,
		TrendingKeywords: []string{"ai", "agent", "dog", "cat", "pepe"},
	}
}
