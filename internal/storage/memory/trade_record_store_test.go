package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
)

func sampleTrade(id, runID, wallet string, createdAt time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:         id,
		RunID:           runID,
		Wallet:          wallet,
		Side:            domain.SideBuy,
		InputMint:       "So11111111111111111111111111111111111111112",
		OutputMint:      "mintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		InAmount:        1_000_000,
		QuotedOutAmount: 42_000,
		OutAmount:       41_900,
		Signature:       "sig-" + id,
		Status:          domain.StatusConfirmed,
		LatencyMs:       120,
		CreatedAt:       createdAt,
	}
}

func TestTradeRecordStore_InsertAndGet(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trade := sampleTrade("t1", "run1", "walletA", time.Now().UTC())
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Wallet != "walletA" {
		t.Errorf("Wallet = %s, want walletA", got.Wallet)
	}
	if got.OutAmount != 41_900 {
		t.Errorf("OutAmount = %d, want 41900", got.OutAmount)
	}
}

func TestTradeRecordStore_InsertDuplicate(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trade := sampleTrade("t1", "run1", "walletA", time.Now().UTC())
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	err := store.Insert(ctx, trade)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeRecordStore_InsertInvalid(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil trade: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.TradeRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty trade_id: expected ErrInvalidInput, got %v", err)
	}
}

func TestTradeRecordStore_GetByIDNotFound(t *testing.T) {
	store := NewTradeRecordStore()

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTradeRecordStore_InsertBulkRollsBackOnDuplicate(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.Insert(ctx, sampleTrade("t1", "run1", "walletA", now)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	batch := []*domain.TradeRecord{
		sampleTrade("t2", "run1", "walletA", now.Add(time.Second)),
		sampleTrade("t1", "run1", "walletB", now.Add(2*time.Second)),
	}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	// Nothing from the failed batch should have landed.
	if _, err := store.GetByID(ctx, "t2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("t2 should not exist after failed batch, got %v", err)
	}
}

func TestTradeRecordStore_InsertBulkRejectsIntraBatchDuplicate(t *testing.T) {
	store := NewTradeRecordStore()

	now := time.Now().UTC()
	batch := []*domain.TradeRecord{
		sampleTrade("t1", "run1", "walletA", now),
		sampleTrade("t1", "run1", "walletB", now.Add(time.Second)),
	}
	err := store.InsertBulk(context.Background(), batch)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeRecordStore_GetByRunIDOrdersByCreatedAt(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	base := time.Now().UTC()
	trades := []*domain.TradeRecord{
		sampleTrade("t3", "run1", "walletA", base.Add(2*time.Second)),
		sampleTrade("t1", "run1", "walletA", base),
		sampleTrade("t2", "run1", "walletB", base.Add(time.Second)),
		sampleTrade("other", "run2", "walletA", base),
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"t1", "t2", "t3"} {
		if got[i].TradeID != want {
			t.Errorf("got[%d].TradeID = %s, want %s", i, got[i].TradeID, want)
		}
	}
}

func TestTradeRecordStore_GetByWallet(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	base := time.Now().UTC()
	trades := []*domain.TradeRecord{
		sampleTrade("t1", "run1", "walletA", base),
		sampleTrade("t2", "run1", "walletB", base.Add(time.Second)),
		sampleTrade("t3", "run1", "walletA", base.Add(2*time.Second)),
		sampleTrade("t4", "run2", "walletA", base.Add(3*time.Second)),
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByWallet(ctx, "run1", "walletA")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TradeID != "t1" || got[1].TradeID != "t3" {
		t.Errorf("got [%s %s], want [t1 t3]", got[0].TradeID, got[1].TradeID)
	}
}

func TestTradeRecordStore_GetByTimeRangeInclusiveBounds(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	trades := []*domain.TradeRecord{
		sampleTrade("before", "run1", "walletA", base.Add(-time.Second)),
		sampleTrade("start", "run1", "walletA", base),
		sampleTrade("mid", "run1", "walletA", base.Add(30*time.Second)),
		sampleTrade("end", "run1", "walletA", base.Add(time.Minute)),
		sampleTrade("after", "run1", "walletA", base.Add(time.Minute+time.Second)),
	}
	if err := store.InsertBulk(ctx, trades); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByTimeRange(ctx, "run1", base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"start", "mid", "end"} {
		if got[i].TradeID != want {
			t.Errorf("got[%d].TradeID = %s, want %s", i, got[i].TradeID, want)
		}
	}
}

func TestTradeRecordStore_CopiesAreIsolated(t *testing.T) {
	store := NewTradeRecordStore()
	ctx := context.Background()

	trade := sampleTrade("t1", "run1", "walletA", time.Now().UTC())
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the inserted value must not affect the stored copy.
	trade.Status = domain.StatusFailed

	got, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Errorf("Status = %s, want CONFIRMED", got.Status)
	}

	// Mutating a returned value must not affect later reads.
	got.OutAmount = 0
	again, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("second GetByID failed: %v", err)
	}
	if again.OutAmount != 41_900 {
		t.Errorf("OutAmount = %d, want 41900", again.OutAmount)
	}
}
