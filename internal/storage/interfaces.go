// Package storage defines persistence interfaces for trade records and
// aggregated volume statistics. Implementations live in subpackages:
// memory (tests and dry runs), postgres (trade log), clickhouse (stats).
package storage

import (
	"context"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
)

// TradeRecordStore provides access to the append-only trade log.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Returns ErrDuplicateKey
	// if any trade_id already exists; no trades are written in that case.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByID retrieves a trade by trade_id. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByRunID retrieves all trades for a run, ordered by created_at.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error)

	// GetByWallet retrieves all trades a wallet made during a run,
	// ordered by created_at.
	GetByWallet(ctx context.Context, runID, wallet string) ([]*domain.TradeRecord, error)

	// GetByTimeRange retrieves trades for a run created within
	// [start, end], ordered by created_at.
	GetByTimeRange(ctx context.Context, runID string, start, end time.Time) ([]*domain.TradeRecord, error)

	// GetAll retrieves every trade across all runs, ordered by created_at.
	GetAll(ctx context.Context) ([]*domain.TradeRecord, error)
}

// VolumeStatStore provides access to per-interval volume aggregates.
type VolumeStatStore interface {
	// InsertBulk adds multiple stat buckets. A bucket is keyed by
	// (run_id, bucket_start, interval_seconds); returns ErrDuplicateKey
	// if any key already exists, and writes nothing in that case.
	InsertBulk(ctx context.Context, stats []*domain.VolumeStat) error

	// GetByRunID retrieves all buckets for a run, ordered by
	// interval_seconds then bucket_start.
	GetByRunID(ctx context.Context, runID string) ([]*domain.VolumeStat, error)

	// GetByTimeRange retrieves buckets for a run and interval whose
	// bucket_start falls within [start, end], ordered by bucket_start.
	GetByTimeRange(ctx context.Context, runID string, intervalSeconds int, start, end time.Time) ([]*domain.VolumeStat, error)
}
