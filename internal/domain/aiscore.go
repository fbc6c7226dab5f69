package domain

import "fmt"

// RiskTier is a provider's coarse risk classification.
type RiskTier string

const (
	RiskTierLow    RiskTier = "LOW"
	RiskTierMedium RiskTier = "MEDIUM"
	RiskTierHigh   RiskTier = "HIGH"
)

// Rank returns the numeric rank of a tier. Higher is more conservative.
// Unknown tiers rank as HIGH.
func (t RiskTier) Rank() int {
	switch t {
	case RiskTierLow:
		return 1
	case RiskTierMedium:
		return 2
	case RiskTierHigh:
		return 3
	default:
		return 3
	}
}

// Valid reports whether t is one of the three known tiers.
func (t RiskTier) Valid() bool {
	switch t {
	case RiskTierLow, RiskTierMedium, RiskTierHigh:
		return true
	}
	return false
}

// MaxReasoningLen bounds the free-text reasoning accepted from a provider.
const MaxReasoningLen = 1000

// AiScore is one provider's opinion on a token.
type AiScore struct {
	Probability float64  `json:"probability"` // probability of profitable entry [0,1]
	RiskTier    RiskTier `json:"risk"`        // LOW | MEDIUM | HIGH
	ROIP50      float64  `json:"roi_p50"`     // expected ROI at P50, >= 0
	ROIP90      float64  `json:"roi_p90"`     // expected ROI at P90, >= 0
	Reasoning   string   `json:"reasoning"`   // free text, bounded length
}

// Validate checks the score against the schema. Violations are hard
// failures for the calling adapter, never silently coerced.
func (a *AiScore) Validate() error {
	if a.Probability < 0 || a.Probability > 1 {
		return fmt.Errorf("probability %v out of [0,1]", a.Probability)
	}
	if !a.RiskTier.Valid() {
		return fmt.Errorf("unknown risk tier %q", a.RiskTier)
	}
	if a.ROIP50 < 0 {
		return fmt.Errorf("roi_p50 %v negative", a.ROIP50)
	}
	if a.ROIP90 < 0 {
		return fmt.Errorf("roi_p90 %v negative", a.ROIP90)
	}
	if len(a.Reasoning) > MaxReasoningLen {
		return fmt.Errorf("reasoning length %d exceeds %d", len(a.Reasoning), MaxReasoningLen)
	}
	return nil
}
