// Package reporting assembles per-run trade reports from the stores and
// renders them as text, Markdown or CSV.
package reporting

import (
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
)

// RunReport is the full picture of one trading session.
type RunReport struct {
	RunID       string
	GeneratedAt time.Time
	FirstTrade  time.Time
	LastTrade   time.Time

	Totals  Totals
	Wallets []WalletRollup
	// Timeline is empty when no volume stat store was available.
	Timeline []*domain.VolumeStat
}

// Totals aggregates the whole run.
type Totals struct {
	Trades     int
	Buys       int
	Sells      int
	BuyVolume  uint64 // lamports spent buying
	SellVolume uint64 // lamports received selling
	Failed     int
	Skipped    int
	// ByErrorKind counts failed trades per classification.
	ByErrorKind map[string]int
	// SuccessRate is confirmed over confirmed plus failed. Skipped trades
	// are excluded: dust is a verdict, not a failure.
	SuccessRate  float64
	AvgLatencyMs int64
}

// WalletRollup aggregates one wallet's confirmed trades.
type WalletRollup struct {
	Wallet     string
	Buys       int
	Sells      int
	BuyVolume  uint64
	SellVolume uint64
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID      string
	Trades     int
	FirstTrade time.Time
	LastTrade  time.Time
}
