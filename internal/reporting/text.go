package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
)

// errorKindOrder fixes the breakdown ordering in rendered output.
var errorKindOrder = []string{domain.ErrorKindRateLimit, domain.ErrorKindTransient, domain.ErrorKindDust}

// RenderText renders the report for a terminal.
func RenderText(r *RunReport) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run %s: %d trades from %s to %s\n",
		r.RunID, r.Totals.Trades,
		r.FirstTrade.Format(time.RFC3339), r.LastTrade.Format(time.RFC3339))
	fmt.Fprintf(&sb, "  confirmed:  %d buys (%s SOL in), %d sells (%s SOL out)\n",
		r.Totals.Buys, SOL(r.Totals.BuyVolume), r.Totals.Sells, SOL(r.Totals.SellVolume))

	fmt.Fprintf(&sb, "  failed:     %d", r.Totals.Failed)
	if r.Totals.Failed > 0 {
		var parts []string
		for _, kind := range errorKindOrder {
			if n := r.Totals.ByErrorKind[kind]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s: %d", kind, n))
			}
		}
		fmt.Fprintf(&sb, "  (%s)", strings.Join(parts, ", "))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  skipped:    %d\n", r.Totals.Skipped)
	if r.Totals.Buys+r.Totals.Sells+r.Totals.Failed > 0 {
		fmt.Fprintf(&sb, "  success:    %.1f%%\n", r.Totals.SuccessRate*100)
	}
	if r.Totals.AvgLatencyMs > 0 {
		fmt.Fprintf(&sb, "  latency:    %d ms avg\n", r.Totals.AvgLatencyMs)
	}

	fmt.Fprintf(&sb, "\nPer wallet (%d active):\n", len(r.Wallets))
	for _, w := range r.Wallets {
		fmt.Fprintf(&sb, "  %s  %3d buys %12s SOL   %3d sells %12s SOL\n",
			w.Wallet, w.Buys, SOL(w.BuyVolume), w.Sells, SOL(w.SellVolume))
	}

	if len(r.Timeline) > 0 {
		fmt.Fprintf(&sb, "\nVolume timeline (%ds buckets):\n", r.Timeline[0].IntervalSeconds)
		for _, s := range r.Timeline {
			fmt.Fprintf(&sb, "  %s  %3d buys %12s SOL   %3d sells %12s SOL   %d wallets\n",
				s.BucketStart.Format("15:04:05"),
				s.Buys, SOL(s.BuyVolume),
				s.Sells, SOL(s.SellVolume),
				s.ActiveWallets)
		}
	}
	return sb.String()
}

// SOL formats lamports as a decimal SOL amount.
func SOL(lamports uint64) string {
	return decimal.New(int64(lamports), -9).String()
}
