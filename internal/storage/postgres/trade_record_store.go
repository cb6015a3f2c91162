package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
)

// TradeRecordStore is a PostgreSQL implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a trade record store backed by the given pool.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

const insertTradeSQL = `
	INSERT INTO trade_records (
		trade_id, run_id, wallet, side, input_mint, output_mint,
		in_amount, quoted_out_amount, out_amount, signature, status,
		error_kind, latency_ms, created_at, confirmed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const selectTradeSQL = `
	SELECT trade_id, run_id, wallet, side, input_mint, output_mint,
		in_amount, quoted_out_amount, out_amount, signature, status,
		error_kind, latency_ms, created_at, confirmed_at
	FROM trade_records`

func tradeArgs(t *domain.TradeRecord) []any {
	// Lamport amounts fit comfortably in BIGINT; stored signed, read back unsigned.
	return []any{
		t.TradeID, t.RunID, t.Wallet, t.Side, t.InputMint, t.OutputMint,
		int64(t.InAmount), int64(t.QuotedOutAmount), int64(t.OutAmount),
		t.Signature, t.Status, t.ErrorKind, t.LatencyMs, t.CreatedAt, t.ConfirmedAt,
	}
}

func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return fmt.Errorf("%w: trade is nil or has empty trade_id", storage.ErrInvalidInput)
	}

	_, err := s.pool.Exec(ctx, insertTradeSQL, tradeArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: trade_id %s", storage.ErrDuplicateKey, t.TradeID)
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return fmt.Errorf("%w: trade is nil or has empty trade_id", storage.ErrInvalidInput)
		}
		if _, err := tx.Exec(ctx, insertTradeSQL, tradeArgs(t)...); err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("%w: trade_id %s", storage.ErrDuplicateKey, t.TradeID)
			}
			return fmt.Errorf("insert trade record %s: %w", t.TradeID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	row := s.pool.QueryRow(ctx, selectTradeSQL+` WHERE trade_id = $1`, tradeID)

	t, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: trade_id %s", storage.ErrNotFound, tradeID)
		}
		return nil, fmt.Errorf("get trade record: %w", err)
	}
	return t, nil
}

func (s *TradeRecordStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		selectTradeSQL+` WHERE run_id = $1 ORDER BY created_at, trade_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades by run: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func (s *TradeRecordStore) GetByWallet(ctx context.Context, runID, wallet string) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		selectTradeSQL+` WHERE run_id = $1 AND wallet = $2 ORDER BY created_at, trade_id`, runID, wallet)
	if err != nil {
		return nil, fmt.Errorf("query trades by wallet: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func (s *TradeRecordStore) GetByTimeRange(ctx context.Context, runID string, start, end time.Time) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		selectTradeSQL+` WHERE run_id = $1 AND created_at >= $2 AND created_at <= $3 ORDER BY created_at, trade_id`,
		runID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trades by time range: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func (s *TradeRecordStore) GetAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, selectTradeSQL+` ORDER BY created_at, trade_id`)
	if err != nil {
		return nil, fmt.Errorf("query all trades: %w", err)
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var inAmount, quotedOut, outAmount int64

	err := row.Scan(
		&t.TradeID, &t.RunID, &t.Wallet, &t.Side, &t.InputMint, &t.OutputMint,
		&inAmount, &quotedOut, &outAmount, &t.Signature, &t.Status,
		&t.ErrorKind, &t.LatencyMs, &t.CreatedAt, &t.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}

	t.InAmount = uint64(inAmount)
	t.QuotedOutAmount = uint64(quotedOut)
	t.OutAmount = uint64(outAmount)
	return &t, nil
}

func scanTradeRecords(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var result []*domain.TradeRecord
	for rows.Next() {
		t, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade records: %w", err)
	}
	return result, nil
}
