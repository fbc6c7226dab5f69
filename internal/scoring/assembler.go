// Package scoring computes the deterministic, auditable part of the
// token score and blends it with the AI consensus.
package scoring

import (
	"math"

	"token-scout/internal/domain"
)

// Subscore ceilings. The bounded ranges encode the blend weights:
// normalizing each subscore to 0-100 and weighting 0.4/0.3/0.3 yields
// exactly the plain sum of the bounded values, so the assembler sums
// them directly. The raw total can reach 115 with the AI bonus; the
// final score is capped at 100 on purpose.
const (
	MaxMarketScore  = 40
	MaxSocialScore  = 30
	MaxOnChainScore = 30

	aiBonusScale = 15

	// socialProxyCap bounds the on-chain momentum proxy used when no
	// genuine social telemetry exists, so weak proxies are never
	// mistaken for real signal.
	socialProxyCap = 10

	// missingFieldPenalty is the multiplicative confidence reduction
	// per absent key field, capped at maxDataPenalty total.
	missingFieldPenalty = 0.08
	maxDataPenalty      = 0.40
)

// Assembler derives ScoreBreakdowns. Stateless; all step thresholds
// are fixed functions, not continuous curves, to avoid overfitting to
// noisy inputs.
type Assembler struct{}

// NewAssembler creates a score assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble computes the breakdown for one snapshot and its consensus.
// Never fails: missing or out-of-range inputs degrade scores instead
// of aborting the evaluation.
func (a *Assembler) Assemble(snapshot *domain.TokenSnapshot, consensus *domain.ConsensusResult) *domain.ScoreBreakdown {
	market := marketScore(snapshot)
	social := socialScore(snapshot)
	onchain := onChainScore(snapshot)
	aiBonus := int(math.Round(consensus.Merged.Probability * aiBonusScale))

	final := market + social + onchain + aiBonus
	if final > 100 {
		final = 100
	}

	return &domain.ScoreBreakdown{
		MarketScore:  market,
		SocialScore:  social,
		OnChainScore: onchain,
		AIBonus:      aiBonus,
		FinalScore:   final,
		Confidence:   adjustedConfidence(snapshot, consensus),
	}
}

// marketScore tiers liquidity, volume/mcap ratio, transaction cadence
// and an age sweet spot into 0-40.
func marketScore(s *domain.TokenSnapshot) int {
	score := 0

	switch {
	case s.LiquidityUSD >= 50000:
		score += 15
	case s.LiquidityUSD >= 20000:
		score += 12
	case s.LiquidityUSD >= 10000:
		score += 8
	case s.LiquidityUSD >= 5000:
		score += 4
	}

	if s.MarketCapUSD > 0 {
		ratio := s.Volume24hUSD / s.MarketCapUSD
		switch {
		case ratio >= 0.5:
			score += 10
		case ratio >= 0.2:
			score += 7
		case ratio >= 0.05:
			score += 4
		}
	}

	switch {
	case s.TxnsPerHour >= 100:
		score += 10
	case s.TxnsPerHour >= 50:
		score += 7
	case s.TxnsPerHour >= 20:
		score += 4
	case s.TxnsPerHour >= 5:
		score += 2
	}

	// Sweet spot: 1-7 day old tokens score highest; younger tokens get
	// a declining bonus, very new and old ones nothing.
	switch {
	case s.AgeHours >= 24 && s.AgeHours <= 168:
		score += 5
	case s.AgeHours >= 12 && s.AgeHours < 24:
		score += 3
	case s.AgeHours >= 6 && s.AgeHours < 12:
		score += 1
	}

	return capScore(score, MaxMarketScore)
}

// socialScore tiers genuine social telemetry into 0-30, or falls back
// to on-chain momentum proxies capped at socialProxyCap.
func socialScore(s *domain.TokenSnapshot) int {
	if !s.HasSocialData() {
		return socialProxy(s)
	}

	score := 0
	switch {
	case s.MentionsPerHour >= 100:
		score += 15
	case s.MentionsPerHour >= 50:
		score += 10
	case s.MentionsPerHour >= 20:
		score += 6
	case s.MentionsPerHour >= 5:
		score += 3
	}

	switch {
	case s.EngagementRate >= 0.10:
		score += 15
	case s.EngagementRate >= 0.05:
		score += 10
	case s.EngagementRate >= 0.02:
		score += 5
	}

	return capScore(score, MaxSocialScore)
}

// socialProxy estimates hype from on-chain momentum when no social
// telemetry was collected.
func socialProxy(s *domain.TokenSnapshot) int {
	score := 0
	switch {
	case s.UniqueBuyers >= 50:
		score += 6
	case s.UniqueBuyers >= 20:
		score += 4
	case s.UniqueBuyers >= 10:
		score += 2
	}

	switch {
	case s.TxnsPerHour >= 50:
		score += 4
	case s.TxnsPerHour >= 20:
		score += 2
	}

	return capScore(score, socialProxyCap)
}

// onChainScore tiers buyer diversity, flow direction and whale
// concentration into 0-30.
func onChainScore(s *domain.TokenSnapshot) int {
	score := 0

	switch {
	case s.UniqueBuyers >= 100:
		score += 12
	case s.UniqueBuyers >= 50:
		score += 9
	case s.UniqueBuyers >= 25:
		score += 6
	case s.UniqueBuyers >= 10:
		score += 3
	}

	switch {
	case s.BuyerSellerRatio >= 2.0:
		score += 8
	case s.BuyerSellerRatio >= 1.5:
		score += 6
	case s.BuyerSellerRatio >= 1.2:
		score += 4
	case s.BuyerSellerRatio >= 1.0:
		score += 2
	}

	// Inverted: lower whale concentration scores higher, zero above a
	// majority-held threshold. Without any observed buyers there is no
	// distribution to reward, so the bonus requires activity.
	if s.UniqueBuyers > 0 {
		switch {
		case s.WhaleShare <= 0.10:
			score += 10
		case s.WhaleShare <= 0.20:
			score += 7
		case s.WhaleShare <= 0.35:
			score += 4
		case s.WhaleShare <= 0.50:
			score += 2
		}
	}

	return capScore(score, MaxOnChainScore)
}

// adjustedConfidence reduces the consensus confidence by data quality
// and provider disagreement. Missing data or disagreement strictly
// lowers trust, never raises it.
func adjustedConfidence(s *domain.TokenSnapshot, consensus *domain.ConsensusResult) float64 {
	missing := domain.KeyFieldCount - s.Completeness()
	dataPenalty := float64(missing) * missingFieldPenalty
	if dataPenalty > maxDataPenalty {
		dataPenalty = maxDataPenalty
	}

	conf := consensus.Confidence * (1 - dataPenalty) * (1 - consensus.ProbDelta)
	return domain.Clamp(conf, 0, 1)
}

func capScore(score, max int) int {
	if score > max {
		return max
	}
	return score
}
