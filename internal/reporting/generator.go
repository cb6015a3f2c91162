package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
)

// Generator builds reports from the trade log and, when available, the
// volume stat store.
type Generator struct {
	trades storage.TradeRecordStore
	stats  storage.VolumeStatStore // nil skips the timeline
}

// NewGenerator creates a Generator. stats may be nil.
func NewGenerator(trades storage.TradeRecordStore, stats storage.VolumeStatStore) *Generator {
	return &Generator{trades: trades, stats: stats}
}

// ListRuns summarizes every session in the trade log, oldest first.
func (g *Generator) ListRuns(ctx context.Context) ([]RunSummary, error) {
	all, err := g.trades.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	byRun := make(map[string]*RunSummary)
	for _, tr := range all {
		s, ok := byRun[tr.RunID]
		if !ok {
			s = &RunSummary{RunID: tr.RunID, FirstTrade: tr.CreatedAt, LastTrade: tr.CreatedAt}
			byRun[tr.RunID] = s
		}
		s.Trades++
		if tr.CreatedAt.Before(s.FirstTrade) {
			s.FirstTrade = tr.CreatedAt
		}
		if tr.CreatedAt.After(s.LastTrade) {
			s.LastTrade = tr.CreatedAt
		}
	}

	out := make([]RunSummary, 0, len(byRun))
	for _, s := range byRun {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstTrade.Before(out[j].FirstTrade) })
	return out, nil
}

// Generate assembles the report for one run.
func (g *Generator) Generate(ctx context.Context, runID string) (*RunReport, error) {
	all, err := g.trades.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no trades for run %s", runID)
	}

	r := &RunReport{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		FirstTrade:  all[0].CreatedAt,
		LastTrade:   all[len(all)-1].CreatedAt,
		Totals:      Totals{Trades: len(all), ByErrorKind: make(map[string]int)},
	}

	var latencySum int64
	var confirmed int
	byWallet := make(map[string]*WalletRollup)

	for _, tr := range all {
		switch tr.Status {
		case domain.StatusConfirmed:
			confirmed++
			latencySum += tr.LatencyMs
			w, ok := byWallet[tr.Wallet]
			if !ok {
				w = &WalletRollup{Wallet: tr.Wallet}
				byWallet[tr.Wallet] = w
			}
			if tr.Side == domain.SideBuy {
				r.Totals.Buys++
				r.Totals.BuyVolume += tr.InAmount
				w.Buys++
				w.BuyVolume += tr.InAmount
			} else {
				r.Totals.Sells++
				r.Totals.SellVolume += tr.OutAmount
				w.Sells++
				w.SellVolume += tr.OutAmount
			}
		case domain.StatusFailed:
			r.Totals.Failed++
			r.Totals.ByErrorKind[tr.ErrorKind]++
		case domain.StatusSkipped:
			r.Totals.Skipped++
		}
	}

	if attempts := confirmed + r.Totals.Failed; attempts > 0 {
		r.Totals.SuccessRate = float64(confirmed) / float64(attempts)
	}
	if confirmed > 0 {
		r.Totals.AvgLatencyMs = latencySum / int64(confirmed)
	}

	r.Wallets = make([]WalletRollup, 0, len(byWallet))
	for _, w := range byWallet {
		r.Wallets = append(r.Wallets, *w)
	}
	sort.Slice(r.Wallets, func(i, j int) bool { return r.Wallets[i].Wallet < r.Wallets[j].Wallet })

	if g.stats != nil {
		timeline, err := g.stats.GetByRunID(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("volume stats: %w", err)
		}
		r.Timeline = timeline
	}
	return r, nil
}
