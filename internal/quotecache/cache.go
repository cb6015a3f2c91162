// Package quotecache caches aggregator quotes under a bucketed amount key so
// near-identical requests from concurrent workers collapse into one external
// call. Entries expire by TTL only; the traded pair set is small, so there is
// no LRU and no size cap.
package quotecache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/jupiter"
	"github.com/JoyBoyak31/demo-volume-bot/internal/observability"
)

// Default configuration values.
const (
	DefaultTTL             = 20 * time.Second
	DefaultCleanupInterval = 30 * time.Second
	// DefaultBucketSize rounds amounts to the nearest 0.001 SOL.
	DefaultBucketSize = 1_000_000
)

// Options configures Cache. Zero values fall back to defaults.
type Options struct {
	// TTL is the maximum age at which an entry can still be served.
	TTL time.Duration
	// CleanupInterval is how often Run sweeps expired entries.
	CleanupInterval time.Duration
	// BucketSize is the amount rounding granularity in base units.
	BucketSize uint64
	// Logger for sweep reporting; defaults to slog.Default().
	Logger *slog.Logger
}

type cacheKey struct {
	inputMint  string
	outputMint string
	bucket     uint64
}

type cacheEntry struct {
	quote     *jupiter.Quote
	createdAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// HitRate returns hits / (hits + misses), 0 when the cache is unused.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a TTL quote cache safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry

	ttl        time.Duration
	interval   time.Duration
	bucketSize uint64
	logger     *slog.Logger

	hits      int64
	misses    int64
	evictions int64
}

// New creates an empty Cache.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.BucketSize == 0 {
		opts.BucketSize = DefaultBucketSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Cache{
		entries:    make(map[cacheKey]cacheEntry),
		ttl:        opts.TTL,
		interval:   opts.CleanupInterval,
		bucketSize: opts.BucketSize,
		logger:     opts.Logger.With("component", "quotecache"),
	}
}

// bucketFor rounds an amount to its cache bucket (nearest multiple).
func (c *Cache) bucketFor(amount uint64) uint64 {
	return (amount + c.bucketSize/2) / c.bucketSize
}

// Get returns a quote no older than TTL for the bucketed key, or a miss.
// Expired entries found on the read path are evicted immediately.
func (c *Cache) Get(inputMint, outputMint string, amount uint64) (*jupiter.Quote, bool) {
	key := cacheKey{inputMint, outputMint, c.bucketFor(amount)}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Since(entry.createdAt) < c.ttl {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		observability.RecordCacheHit()
		return entry.quote, true
	}

	c.mu.Lock()
	if ok {
		// Re-check under the write lock: a concurrent Set may have
		// refreshed the slot since the read above.
		if current, still := c.entries[key]; still && time.Since(current.createdAt) >= c.ttl {
			delete(c.entries, key)
			c.evictions++
		}
	}
	c.misses++
	c.mu.Unlock()
	observability.RecordCacheMiss()
	return nil, false
}

// Set stores a quote under the bucketed key, replacing any previous entry.
func (c *Cache) Set(inputMint, outputMint string, amount uint64, quote *jupiter.Quote) {
	key := cacheKey{inputMint, outputMint, c.bucketFor(amount)}

	c.mu.Lock()
	c.entries[key] = cacheEntry{quote: quote, createdAt: time.Now()}
	entries := len(c.entries)
	c.mu.Unlock()

	observability.UpdateCacheEntries(entries)
}

// Cleanup removes all expired entries and returns how many were evicted.
func (c *Cache) Cleanup() int {
	now := time.Now()

	c.mu.Lock()
	evicted := 0
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
			evicted++
		}
	}
	c.evictions += int64(evicted)
	remaining := len(c.entries)
	c.mu.Unlock()

	observability.RecordCacheEviction(evicted, remaining)
	return evicted
}

// Clear drops every entry regardless of age.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()
	observability.UpdateCacheEntries(0)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}

// Run sweeps expired entries on a ticker until ctx is cancelled. The sweep is
// independent of any caller so idle pairs do not pin stale quotes in memory.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := c.Cleanup(); evicted > 0 {
				c.logger.Debug("swept expired quotes", "evicted", evicted)
			}
		}
	}
}
