// Package queue implements the paced execution queue every external
// aggregator call goes through. Two FIFO tiers feed a single drain loop that
// owns all dispatch-timing state: high-priority items (cooldown liquidations,
// canaries) always dispatch before normal trading calls, a token limiter
// enforces the minimum inter-request delay, and a slot semaphore caps
// in-flight work. The queue delivers call opportunities, never interprets
// results.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/observability"
)

// Default configuration values.
const (
	DefaultRequestsPerSecond = 2.0
	DefaultMaxConcurrent     = 1

	// MinRate and MaxRate bound every rate change, including the cooldown
	// coordinator's actuator and the adaptive tuner.
	MinRate = 1.0
	MaxRate = 10.0
)

// Priority selects the queue tier.
type Priority int

const (
	// Normal items append to the back of the normal tier.
	Normal Priority = iota
	// High items are drained before any queued normal item.
	High
)

// String returns the metrics label for the tier.
func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "normal"
}

// Work is an opaque unit submitted to the queue. Callers capture their
// results in the closure; the queue only sees success or failure and even
// that it merely delivers, without acting on it.
type Work func(ctx context.Context) error

type item struct {
	work       Work
	pri        Priority
	done       chan error // buffered 1, delivered exactly once
	enqueuedAt time.Time
}

// Options configures a Queue. Zero values fall back to defaults.
type Options struct {
	// RequestsPerSecond is the initial pacing ceiling, clamped to
	// [MinRate, MaxRate].
	RequestsPerSecond float64
	// MaxConcurrent caps in-flight work items.
	MaxConcurrent int
	// Logger for rate changes and shutdown; defaults to slog.Default().
	Logger *slog.Logger
}

// Queue is the two-tier paced execution queue.
type Queue struct {
	mu      sync.Mutex
	high    []*item
	normal  []*item
	stopped bool

	wake    chan struct{}
	slots   chan struct{}
	limiter *rate.Limiter
	rps     float64 // guarded by mu

	active atomic.Int32
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a Queue. Run must be started for items to dispatch.
func New(opts Options) *Queue {
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	rps := clampRate(opts.RequestsPerSecond)
	q := &Queue{
		wake:    make(chan struct{}, 1),
		slots:   make(chan struct{}, opts.MaxConcurrent),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
		logger:  opts.Logger.With("component", "queue"),
	}
	observability.UpdateQueueRate(rps)
	return q
}

func clampRate(v float64) float64 {
	if v < MinRate {
		return MinRate
	}
	if v > MaxRate {
		return MaxRate
	}
	return v
}

// Submit enqueues work and returns the channel its result will arrive on.
// The channel is buffered; the caller may abandon it freely. After shutdown
// every submission resolves immediately with domain.ErrStopped.
func (q *Queue) Submit(pri Priority, work Work) <-chan error {
	it := &item{
		work:       work,
		pri:        pri,
		done:       make(chan error, 1),
		enqueuedAt: time.Now(),
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		it.done <- domain.ErrStopped
		return it.done
	}
	if pri == High {
		q.high = append(q.high, it)
	} else {
		q.normal = append(q.normal, it)
	}
	high, normal := len(q.high), len(q.normal)
	q.mu.Unlock()

	observability.UpdateQueueDepth(high, normal)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return it.done
}

// Do submits work and waits for its result. If ctx ends first the work is
// not cancelled (there is no mid-flight cancellation), but the caller stops
// waiting and the buffered result is dropped when it eventually arrives.
func (q *Queue) Do(ctx context.Context, pri Priority, work Work) error {
	done := q.Submit(pri, work)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRequestsPerSecond changes the pacing ceiling, clamped to
// [MinRate, MaxRate], and returns the applied value. Takes effect for the
// next dispatch. This is the actuator the cooldown coordinator and the
// adaptive tuner use.
func (q *Queue) SetRequestsPerSecond(v float64) float64 {
	applied := clampRate(v)

	q.mu.Lock()
	prev := q.rps
	q.rps = applied
	q.mu.Unlock()

	q.limiter.SetLimit(rate.Limit(applied))
	observability.UpdateQueueRate(applied)
	if prev != applied {
		q.logger.Info("rate changed", "from", prev, "to", applied)
	}
	return applied
}

// RequestsPerSecond returns the current pacing ceiling.
func (q *Queue) RequestsPerSecond() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rps
}

// Depth returns the queued item counts per tier.
func (q *Queue) Depth() (high, normal int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high), len(q.normal)
}

// Active returns the number of in-flight work items.
func (q *Queue) Active() int {
	return int(q.active.Load())
}

// pop removes the next item, high tier first, FIFO within a tier.
func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var it *item
	switch {
	case len(q.high) > 0:
		it = q.high[0]
		q.high = q.high[1:]
	case len(q.normal) > 0:
		it = q.normal[0]
		q.normal = q.normal[1:]
	default:
		return nil
	}
	return it
}

func (q *Queue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) == 0 && len(q.normal) == 0
}

// Run is the drain loop, the only goroutine that dispatches. It returns once
// ctx is cancelled, after failing remaining queued items with ErrStopped and
// joining all in-flight work.
//
// The next item is picked only after a slot and a rate token are both held,
// so a high-priority submission that arrives while the loop is blocked still
// jumps ahead of every queued normal item.
func (q *Queue) Run(ctx context.Context) {
	defer q.finish()

	for {
		if q.empty() {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		// Concurrency cap first so a full pipeline does not burn
		// rate tokens while blocked.
		select {
		case q.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		// Pacing: at most one dispatch per 1/rps interval.
		if err := q.limiter.Wait(ctx); err != nil {
			<-q.slots
			return
		}

		it := q.pop()
		if it == nil {
			// Unreachable while Run is the sole consumer.
			<-q.slots
			continue
		}

		q.dispatch(ctx, it)
	}
}

// dispatch hands the item to a worker goroutine and updates counters.
func (q *Queue) dispatch(ctx context.Context, it *item) {
	q.active.Add(1)
	observability.UpdateQueueActive(int(q.active.Load()))
	observability.RecordDispatch(it.pri.String(), time.Since(it.enqueuedAt).Seconds())

	high, normal := q.Depth()
	observability.UpdateQueueDepth(high, normal)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		err := it.work(ctx)
		it.done <- err

		q.active.Add(-1)
		observability.UpdateQueueActive(int(q.active.Load()))
		<-q.slots
	}()
}

// finish marks the queue stopped, fails whatever is still queued and waits
// for in-flight work so callers never block on an abandoned channel.
func (q *Queue) finish() {
	q.mu.Lock()
	q.stopped = true
	remaining := make([]*item, 0, len(q.high)+len(q.normal))
	remaining = append(remaining, q.high...)
	remaining = append(remaining, q.normal...)
	q.high = nil
	q.normal = nil
	q.mu.Unlock()

	for _, it := range remaining {
		it.done <- domain.ErrStopped
	}
	q.wg.Wait()

	observability.UpdateQueueDepth(0, 0)
	observability.UpdateQueueActive(0)
	if len(remaining) > 0 {
		q.logger.Info("queue stopped", "undispatched", len(remaining))
	}
}
