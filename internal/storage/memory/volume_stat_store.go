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

// VolumeStatStore is an in-memory implementation of storage.VolumeStatStore.
type VolumeStatStore struct {
	mu    sync.RWMutex
	stats map[string]*domain.VolumeStat
}

// NewVolumeStatStore creates an empty in-memory volume stat store.
func NewVolumeStatStore() *VolumeStatStore {
	return &VolumeStatStore{
		stats: make(map[string]*domain.VolumeStat),
	}
}

func statKey(runID string, bucketStart time.Time, intervalSeconds int) string {
	return fmt.Sprintf("%s|%d|%d", runID, bucketStart.UnixMilli(), intervalSeconds)
}

func (s *VolumeStatStore) InsertBulk(ctx context.Context, stats []*domain.VolumeStat) error {
	if len(stats) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before writing anything.
	batchKeys := make(map[string]bool, len(stats))
	for _, v := range stats {
		if v == nil || v.RunID == "" || v.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: stat is nil or missing run_id/interval", storage.ErrInvalidInput)
		}
		key := statKey(v.RunID, v.BucketStart, v.IntervalSeconds)
		if batchKeys[key] {
			return fmt.Errorf("%w: bucket %s repeated in batch", storage.ErrDuplicateKey, key)
		}
		batchKeys[key] = true
		if _, exists := s.stats[key]; exists {
			return fmt.Errorf("%w: bucket %s", storage.ErrDuplicateKey, key)
		}
	}

	for _, v := range stats {
		copy := *v
		s.stats[statKey(v.RunID, v.BucketStart, v.IntervalSeconds)] = &copy
	}
	return nil
}

func (s *VolumeStatStore) GetByRunID(ctx context.Context, runID string) ([]*domain.VolumeStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VolumeStat
	for _, v := range s.stats {
		if v.RunID == runID {
			copy := *v
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].IntervalSeconds != result[j].IntervalSeconds {
			return result[i].IntervalSeconds < result[j].IntervalSeconds
		}
		return result[i].BucketStart.Before(result[j].BucketStart)
	})
	return result, nil
}

func (s *VolumeStatStore) GetByTimeRange(ctx context.Context, runID string, intervalSeconds int, start, end time.Time) ([]*domain.VolumeStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VolumeStat
	for _, v := range s.stats {
		if v.RunID != runID || v.IntervalSeconds != intervalSeconds {
			continue
		}
		if v.BucketStart.Before(start) || v.BucketStart.After(end) {
			continue
		}
		copy := *v
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart.Before(result[j].BucketStart)
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.VolumeStatStore = (*VolumeStatStore)(nil)
