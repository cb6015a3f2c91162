package engine

import (
	"context"
	"sort"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
)

// statBucket accumulates one interval's confirmed volume. The wallet set
// dedupes ActiveWallets across trades.
type statBucket struct {
	stat    *domain.VolumeStat
	wallets map[string]struct{}
}

// bucketTrade folds one confirmed trade into the bucket covering now.
// Bucketing by completion time rather than start time means a flushed
// bucket can never receive a late trade, so each bucket is written exactly
// once.
func (e *Engine) bucketTrade(rec *domain.TradeRecord) {
	if e.stats == nil {
		return
	}
	start := time.Now().UTC().Truncate(e.statInterval)

	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.buckets[start.UnixMilli()]
	if !ok {
		b = &statBucket{
			stat: &domain.VolumeStat{
				RunID:           e.runID,
				BucketStart:     start,
				IntervalSeconds: int(e.statInterval / time.Second),
			},
			wallets: make(map[string]struct{}),
		}
		e.buckets[start.UnixMilli()] = b
	}
	switch rec.Side {
	case domain.SideBuy:
		b.stat.Buys++
		b.stat.BuyVolume += rec.InAmount
	case domain.SideSell:
		b.stat.Sells++
		b.stat.SellVolume += rec.OutAmount
	}
	b.wallets[rec.Wallet] = struct{}{}
	b.stat.ActiveWallets = uint32(len(b.wallets))
}

// flushStats persists buckets that can no longer change: those at least one
// full interval in the past, or everything when the session is ending.
func (e *Engine) flushStats(ctx context.Context, all bool) {
	if e.stats == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-e.statInterval)

	e.mu.Lock()
	var out []*domain.VolumeStat
	for key, b := range e.buckets {
		if all || b.stat.BucketStart.Before(cutoff) {
			out = append(out, b.stat)
			delete(e.buckets, key)
		}
	}
	e.mu.Unlock()

	if len(out) == 0 {
		return
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BucketStart.Before(out[j].BucketStart)
	})
	if err := e.stats.InsertBulk(ctx, out); err != nil {
		e.logger.Error("volume stat flush failed", "buckets", len(out), "error", err)
		return
	}
	e.logger.Debug("volume stats flushed", "buckets", len(out))
}
