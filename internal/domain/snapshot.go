package domain

// TokenSnapshot is a point-in-time market/on-chain view of one token.
// Produced by the ingestion collector; consumed read-only by the pipeline.
type TokenSnapshot struct {
	Mint        string // token mint address (base58)
	Name        string // token name
	Symbol      string // token symbol
	PairAddress string // DEX pair address, if known

	// Market
	PriceUSD     float64 // last trade price in USD
	MarketCapUSD float64 // fully diluted market cap in USD
	LiquidityUSD float64 // pool liquidity in USD
	Volume24hUSD float64 // 24h trade volume in USD
	TxnsPerHour  float64 // hourly transaction count
	AgeHours     float64 // hours since first pool activity

	// Social (optional; zero means not collected)
	MentionsPerHour float64 // social mention velocity
	EngagementRate  float64 // likes+replies per mention, normalized

	// On-chain flow
	UniqueBuyers     int     // distinct buyer wallets observed
	BuyerSellerRatio float64 // buys / sells over the observation window
	WhaleShare       float64 // fraction of volume from the largest holders [0,1]

	DiscoveredAt int64 // unix ms when the token was first observed
}

// Normalize clamps out-of-range numeric fields in place.
// This is the single coercion point for untrusted collector input:
// negative magnitudes become zero and shares are bounded to [0,1].
func (s *TokenSnapshot) Normalize() {
	s.PriceUSD = clampMin(s.PriceUSD, 0)
	s.MarketCapUSD = clampMin(s.MarketCapUSD, 0)
	s.LiquidityUSD = clampMin(s.LiquidityUSD, 0)
	s.Volume24hUSD = clampMin(s.Volume24hUSD, 0)
	s.TxnsPerHour = clampMin(s.TxnsPerHour, 0)
	s.AgeHours = clampMin(s.AgeHours, 0)
	s.MentionsPerHour = clampMin(s.MentionsPerHour, 0)
	s.EngagementRate = clampMin(s.EngagementRate, 0)
	s.BuyerSellerRatio = clampMin(s.BuyerSellerRatio, 0)
	s.WhaleShare = Clamp(s.WhaleShare, 0, 1)
	if s.UniqueBuyers < 0 {
		s.UniqueBuyers = 0
	}
}

// KeyFieldCount is the number of fields Completeness checks.
const KeyFieldCount = 6

// Completeness returns how many of the key snapshot fields are present
// and non-zero. Used for consensus/assembler confidence adjustments.
func (s *TokenSnapshot) Completeness() int {
	present := 0
	for _, v := range []float64{
		s.PriceUSD,
		s.MarketCapUSD,
		s.LiquidityUSD,
		s.Volume24hUSD,
		s.TxnsPerHour,
		float64(s.UniqueBuyers),
	} {
		if v > 0 {
			present++
		}
	}
	return present
}

// HasSocialData reports whether genuine social telemetry was collected.
func (s *TokenSnapshot) HasSocialData() bool {
	return s.MentionsPerHour > 0 || s.EngagementRate > 0
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampMin(v, lo float64) float64 {
	if v < lo {
		return lo
	}
	return v
}
