package provider

import (
	"fmt"
	"strings"

	"token-scout/internal/domain"
)

// systemPrompt pins the model to the reply schema. Both providers get
// the identical instruction so their outputs stay comparable.
const systemPrompt = `You are a memecoin entry analyst. Given market and on-chain facts about a newly launched token, estimate the probability that entering now is profitable.

Reply with a single JSON object and nothing else:
{"probability": <0..1>, "risk": "LOW"|"MEDIUM"|"HIGH", "roi_p50": <>=0>, "roi_p90": <>=0>, "reasoning": "<at most 500 characters>"}

Be conservative: missing data lowers probability, it never raises it.`

// repairPrompt asks for a corrected reply after a malformed one.
const repairPrompt = `Your previous reply was not valid JSON. Reply again with ONLY the JSON object in the required schema, no prose, no code fences.`

// BuildUserPrompt renders the snapshot into the deterministic user
// message. Field order is fixed so identical snapshots produce
// byte-identical prompts.
func BuildUserPrompt(s *domain.TokenSnapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Token: %s (%s)\n", s.Name, s.Symbol)
	fmt.Fprintf(&sb, "Mint: %s\n", s.Mint)
	fmt.Fprintf(&sb, "Price USD: %.10f\n", s.PriceUSD)
	fmt.Fprintf(&sb, "Market cap USD: %.2f\n", s.MarketCapUSD)
	fmt.Fprintf(&sb, "Liquidity USD: %.2f\n", s.LiquidityUSD)
	fmt.Fprintf(&sb, "Volume 24h USD: %.2f\n", s.Volume24hUSD)
	fmt.Fprintf(&sb, "Transactions per hour: %.1f\n", s.TxnsPerHour)
	fmt.Fprintf(&sb, "Age hours: %.1f\n", s.AgeHours)

	if s.HasSocialData() {
		fmt.Fprintf(&sb, "Social mentions per hour: %.1f\n", s.MentionsPerHour)
		fmt.Fprintf(&sb, "Engagement rate: %.3f\n", s.EngagementRate)
	} else {
		sb.WriteString("Social data: not available\n")
	}

	fmt.Fprintf(&sb, "Unique buyers: %d\n", s.UniqueBuyers)
	fmt.Fprintf(&sb, "Buyer/seller ratio: %.2f\n", s.BuyerSellerRatio)
	fmt.Fprintf(&sb, "Whale share: %.2f\n", s.WhaleShare)

	sb.WriteString("\nEstimate entry probability, risk tier and expected ROI.")
	return sb.String()
}
