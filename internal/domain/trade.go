package domain

import "time"

// TradeRecord represents one executed (or attempted) side of a volume cycle.
// Corresponds to the trade_records table.
type TradeRecord struct {
	TradeID string // uuid
	RunID   string // trading session this trade belongs to
	Wallet  string // base58 wallet public key
	Side    string // "BUY" | "SELL"

	// Swap legs
	InputMint       string // mint spent
	OutputMint      string // mint received
	InAmount        uint64 // input amount in base units
	QuotedOutAmount uint64 // out amount promised by the quote
	OutAmount       uint64 // out amount after execution (0 if unconfirmed)

	// Execution
	Signature string // transaction signature, empty if never submitted
	Status    string // "CONFIRMED" | "FAILED" | "SKIPPED"
	ErrorKind string // failure classification, empty on success
	LatencyMs int64  // submit-to-confirm latency

	CreatedAt   time.Time  // when the cycle step started
	ConfirmedAt *time.Time // nil if never confirmed
}

// VolumeStat is a per-interval aggregate of generated volume.
// Corresponds to the volume_stats table.
type VolumeStat struct {
	RunID           string    // trading session
	BucketStart     time.Time // aligned to IntervalSeconds
	IntervalSeconds int       // aggregation interval
	Buys            uint32    // confirmed buy count
	Sells           uint32    // confirmed sell count
	BuyVolume       uint64    // lamports spent buying
	SellVolume      uint64    // lamports received selling
	ActiveWallets   uint32    // distinct wallets that traded in the bucket
}

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade statuses
const (
	StatusConfirmed = "CONFIRMED"
	StatusFailed    = "FAILED"
	StatusSkipped   = "SKIPPED"
)

// Error kind codes recorded on failed or skipped trades
const (
	ErrorKindRateLimit = "RATE_LIMIT"
	ErrorKindTransient = "TRANSIENT"
	ErrorKindDust      = "DUST"
)
