package reporting

import (
	"fmt"
	"strings"
)

// RenderWalletsCSV renders the per-wallet rollup as CSV.
func RenderWalletsCSV(r *RunReport) string {
	var sb strings.Builder
	sb.WriteString("run_id,wallet,buys,buy_volume_lamports,sells,sell_volume_lamports\n")
	for _, w := range r.Wallets {
		fmt.Fprintf(&sb, "%s,%s,%d,%d,%d,%d\n",
			r.RunID, w.Wallet, w.Buys, w.BuyVolume, w.Sells, w.SellVolume)
	}
	return sb.String()
}

// RenderTimelineCSV renders the volume timeline as CSV. Empty without a
// stat store.
func RenderTimelineCSV(r *RunReport) string {
	var sb strings.Builder
	sb.WriteString("run_id,bucket_start,interval_seconds,buys,sells,buy_volume_lamports,sell_volume_lamports,active_wallets\n")
	for _, s := range r.Timeline {
		fmt.Fprintf(&sb, "%s,%s,%d,%d,%d,%d,%d,%d\n",
			r.RunID, s.BucketStart.UTC().Format("2006-01-02T15:04:05.000Z"),
			s.IntervalSeconds, s.Buys, s.Sells, s.BuyVolume, s.SellVolume, s.ActiveWallets)
	}
	return sb.String()
}
