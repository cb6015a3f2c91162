package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as a Markdown document.
func RenderMarkdown(r *RunReport) string {
	var sb strings.Builder

	sb.WriteString("# Volume Run Report\n\n")
	fmt.Fprintf(&sb, "Run: `%s`\n\n", r.RunID)
	fmt.Fprintf(&sb, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Trading window: %s to %s\n\n",
		r.FirstTrade.Format(time.RFC3339), r.LastTrade.Format(time.RFC3339))

	sb.WriteString("## Totals\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	fmt.Fprintf(&sb, "| Trades | %d |\n", r.Totals.Trades)
	fmt.Fprintf(&sb, "| Confirmed buys | %d |\n", r.Totals.Buys)
	fmt.Fprintf(&sb, "| Confirmed sells | %d |\n", r.Totals.Sells)
	fmt.Fprintf(&sb, "| Buy volume (SOL) | %s |\n", SOL(r.Totals.BuyVolume))
	fmt.Fprintf(&sb, "| Sell volume (SOL) | %s |\n", SOL(r.Totals.SellVolume))
	fmt.Fprintf(&sb, "| Failed | %d |\n", r.Totals.Failed)
	fmt.Fprintf(&sb, "| Skipped | %d |\n", r.Totals.Skipped)
	fmt.Fprintf(&sb, "| Success rate | %.1f%% |\n", r.Totals.SuccessRate*100)
	fmt.Fprintf(&sb, "| Avg latency (ms) | %d |\n", r.Totals.AvgLatencyMs)
	sb.WriteString("\n")

	if r.Totals.Failed > 0 {
		sb.WriteString("## Failures\n\n")
		sb.WriteString("| Kind | Count |\n")
		sb.WriteString("|------|-------|\n")
		for _, kind := range errorKindOrder {
			if n := r.Totals.ByErrorKind[kind]; n > 0 {
				fmt.Fprintf(&sb, "| %s | %d |\n", kind, n)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Wallets\n\n")
	if len(r.Wallets) > 0 {
		sb.WriteString("| Wallet | Buys | Buy SOL | Sells | Sell SOL |\n")
		sb.WriteString("|--------|------|---------|-------|----------|\n")
		for _, w := range r.Wallets {
			fmt.Fprintf(&sb, "| `%s` | %d | %s | %d | %s |\n",
				w.Wallet, w.Buys, SOL(w.BuyVolume), w.Sells, SOL(w.SellVolume))
		}
	} else {
		sb.WriteString("No confirmed trades.\n")
	}
	sb.WriteString("\n")

	if len(r.Timeline) > 0 {
		fmt.Fprintf(&sb, "## Volume Timeline (%ds buckets)\n\n", r.Timeline[0].IntervalSeconds)
		sb.WriteString("| Bucket | Buys | Buy SOL | Sells | Sell SOL | Wallets |\n")
		sb.WriteString("|--------|------|---------|-------|----------|--------|\n")
		for _, s := range r.Timeline {
			fmt.Fprintf(&sb, "| %s | %d | %s | %d | %s | %d |\n",
				s.BucketStart.Format(time.RFC3339),
				s.Buys, SOL(s.BuyVolume),
				s.Sells, SOL(s.SellVolume),
				s.ActiveWallets)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
