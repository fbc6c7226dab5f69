package decision

import (
	"fmt"
	"strings"

	"token-scout/internal/domain"
)

// RenderMarkdown renders one evaluation as a Markdown block for the
// Telegram/web collaborators.
func RenderMarkdown(rec *domain.EvaluationRecord) string {
	var sb strings.Builder

	verdict := "SKIP"
	if rec.Decision.Buy {
		verdict = "BUY"
	}
	fmt.Fprintf(&sb, "# %s (%s): %s\n\n", rec.Snapshot.Name, rec.Symbol, verdict)
	fmt.Fprintf(&sb, "Mint: `%s`\n\n", rec.Mint)

	sb.WriteString("## Score\n\n")
	sb.WriteString("| Component | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	fmt.Fprintf(&sb, "| Market | %d/40 |\n", rec.Breakdown.MarketScore)
	fmt.Fprintf(&sb, "| Social | %d/30 |\n", rec.Breakdown.SocialScore)
	fmt.Fprintf(&sb, "| On-chain | %d/30 |\n", rec.Breakdown.OnChainScore)
	fmt.Fprintf(&sb, "| AI bonus | %d |\n", rec.Breakdown.AIBonus)
	fmt.Fprintf(&sb, "| **Final** | **%d/100** |\n", rec.Breakdown.FinalScore)
	fmt.Fprintf(&sb, "\nConfidence: %.2f, provider delta: %.2f\n\n", rec.Breakdown.Confidence, rec.Consensus.ProbDelta)

	fmt.Fprintf(&sb, "## Risk: %s (%d/100)\n\n", rec.Risk.Level, rec.Risk.Score)
	fmt.Fprintf(&sb, "Liquidity %s, distribution %s, activity %s\n\n",
		rec.Risk.Liquidity, rec.Risk.Distribution, rec.Risk.Activity)
	for _, f := range rec.Risk.Flags {
		fmt.Fprintf(&sb, "- FLAG: %s\n", f)
	}
	for _, w := range rec.Risk.Warnings {
		fmt.Fprintf(&sb, "- warning: %s\n", w)
	}
	if len(rec.Risk.Flags)+len(rec.Risk.Warnings) > 0 {
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "## Decision (confidence %.1f)\n\n", rec.Decision.Confidence)
	for _, r := range rec.Decision.Reasons {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	if rec.Decision.Buy {
		fmt.Fprintf(&sb, "\nPosition: %.4f SOL, max entry %.10f, stop -%.0f%%, target +%.0f%%\n",
			rec.Decision.PositionSizeSOL, rec.Decision.MaxEntryPrice,
			rec.Decision.StopLossPct, rec.Decision.TakeProfitPct)
	}

	return sb.String()
}
