// Package memory provides in-memory store implementations backed by maps.
// They mirror the persistent stores' semantics and serve tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	mu     sync.RWMutex
	trades map[string]*domain.TradeRecord
}

// NewTradeRecordStore creates an empty in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		trades: make(map[string]*domain.TradeRecord),
	}
}

func (s *TradeRecordStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return fmt.Errorf("%w: trade is nil or has empty trade_id", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[t.TradeID]; exists {
		return fmt.Errorf("%w: trade_id %s", storage.ErrDuplicateKey, t.TradeID)
	}

	copy := *t
	s.trades[t.TradeID] = &copy
	return nil
}

func (s *TradeRecordStore) InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before writing anything.
	batchKeys := make(map[string]bool, len(trades))
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return fmt.Errorf("%w: trade is nil or has empty trade_id", storage.ErrInvalidInput)
		}
		if batchKeys[t.TradeID] {
			return fmt.Errorf("%w: trade_id %s repeated in batch", storage.ErrDuplicateKey, t.TradeID)
		}
		batchKeys[t.TradeID] = true
		if _, exists := s.trades[t.TradeID]; exists {
			return fmt.Errorf("%w: trade_id %s", storage.ErrDuplicateKey, t.TradeID)
		}
	}

	for _, t := range trades {
		copy := *t
		s.trades[t.TradeID] = &copy
	}
	return nil
}

func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.trades[tradeID]
	if !exists {
		return nil, fmt.Errorf("%w: trade_id %s", storage.ErrNotFound, tradeID)
	}

	copy := *t
	return &copy, nil
}

func (s *TradeRecordStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.trades {
		if t.RunID == runID {
			copy := *t
			result = append(result, &copy)
		}
	}

	sortTrades(result)
	return result, nil
}

func (s *TradeRecordStore) GetByWallet(ctx context.Context, runID, wallet string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.trades {
		if t.RunID == runID && t.Wallet == wallet {
			copy := *t
			result = append(result, &copy)
		}
	}

	sortTrades(result)
	return result, nil
}

func (s *TradeRecordStore) GetByTimeRange(ctx context.Context, runID string, start, end time.Time) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.trades {
		if t.RunID != runID {
			continue
		}
		if t.CreatedAt.Before(start) || t.CreatedAt.After(end) {
			continue
		}
		copy := *t
		result = append(result, &copy)
	}

	sortTrades(result)
	return result, nil
}

func (s *TradeRecordStore) GetAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TradeRecord, 0, len(s.trades))
	for _, t := range s.trades {
		copy := *t
		result = append(result, &copy)
	}

	sortTrades(result)
	return result, nil
}

func sortTrades(trades []*domain.TradeRecord) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].TradeID < trades[j].TradeID
		}
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
}

// Verify interface compliance at compile time.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
