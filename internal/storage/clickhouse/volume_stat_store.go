package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
)

// VolumeStatStore is a ClickHouse implementation of storage.VolumeStatStore.
type VolumeStatStore struct {
	conn *Conn
}

// NewVolumeStatStore creates a volume stat store backed by the given connection.
func NewVolumeStatStore(conn *Conn) *VolumeStatStore {
	return &VolumeStatStore{conn: conn}
}

var _ storage.VolumeStatStore = (*VolumeStatStore)(nil)

const selectStatsSQL = `
	SELECT run_id, bucket_start, interval_seconds, buys, sells,
		buy_volume, sell_volume, active_wallets
	FROM volume_stats`

func (s *VolumeStatStore) InsertBulk(ctx context.Context, stats []*domain.VolumeStat) error {
	if len(stats) == 0 {
		return nil
	}

	// MergeTree enforces no unique constraints, so duplicate buckets are
	// rejected with an explicit existence check before the batch is sent.
	batchKeys := make(map[string]bool, len(stats))
	for _, v := range stats {
		if v == nil || v.RunID == "" || v.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: stat is nil or missing run_id/interval", storage.ErrInvalidInput)
		}
		key := fmt.Sprintf("%s|%d|%d", v.RunID, v.BucketStart.UnixMilli(), v.IntervalSeconds)
		if batchKeys[key] {
			return fmt.Errorf("%w: bucket %s repeated in batch", storage.ErrDuplicateKey, key)
		}
		batchKeys[key] = true

		dup, err := s.exists(ctx, v.RunID, v.BucketStart, v.IntervalSeconds)
		if err != nil {
			return fmt.Errorf("check existing bucket: %w", err)
		}
		if dup {
			return fmt.Errorf("%w: bucket %s", storage.ErrDuplicateKey, key)
		}
	}

	batch, err := s.conn.PrepareBatch(ctx,
		`INSERT INTO volume_stats (run_id, bucket_start, interval_seconds, buys, sells, buy_volume, sell_volume, active_wallets)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, v := range stats {
		err := batch.Append(
			v.RunID, v.BucketStart, uint32(v.IntervalSeconds),
			v.Buys, v.Sells, v.BuyVolume, v.SellVolume, v.ActiveWallets,
		)
		if err != nil {
			return fmt.Errorf("append stat: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *VolumeStatStore) exists(ctx context.Context, runID string, bucketStart time.Time, intervalSeconds int) (bool, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT count() FROM volume_stats WHERE run_id = ? AND bucket_start = ? AND interval_seconds = ?`,
		runID, bucketStart, uint32(intervalSeconds))

	var count uint64
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *VolumeStatStore) GetByRunID(ctx context.Context, runID string) ([]*domain.VolumeStat, error) {
	rows, err := s.conn.Query(ctx,
		selectStatsSQL+` WHERE run_id = ? ORDER BY interval_seconds, bucket_start`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stats by run: %w", err)
	}

	return scanVolumeStats(rows)
}

func (s *VolumeStatStore) GetByTimeRange(ctx context.Context, runID string, intervalSeconds int, start, end time.Time) ([]*domain.VolumeStat, error) {
	rows, err := s.conn.Query(ctx,
		selectStatsSQL+` WHERE run_id = ? AND interval_seconds = ? AND bucket_start >= ? AND bucket_start <= ? ORDER BY bucket_start`,
		runID, uint32(intervalSeconds), start, end)
	if err != nil {
		return nil, fmt.Errorf("query stats by time range: %w", err)
	}

	return scanVolumeStats(rows)
}

func scanVolumeStats(rows driver.Rows) ([]*domain.VolumeStat, error) {
	defer rows.Close()

	var result []*domain.VolumeStat
	for rows.Next() {
		var v domain.VolumeStat
		var interval uint32
		err := rows.Scan(
			&v.RunID, &v.BucketStart, &interval, &v.Buys, &v.Sells,
			&v.BuyVolume, &v.SellVolume, &v.ActiveWallets,
		)
		if err != nil {
			return nil, fmt.Errorf("scan volume stat: %w", err)
		}
		v.IntervalSeconds = int(interval)
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume stats: %w", err)
	}
	return result, nil
}
