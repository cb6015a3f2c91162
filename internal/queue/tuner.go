package queue

import (
	"log/slog"
	"sync"
	"time"
)

// Tuner defaults.
const (
	DefaultTunerStep          = 0.5
	DefaultTunerSuccessStreak = 10
	DefaultTunerInterval      = time.Minute
)

// RateController is the slice of the queue the tuner drives.
type RateController interface {
	SetRequestsPerSecond(v float64) float64
	RequestsPerSecond() float64
}

// TunerOptions configures a Tuner. Zero values fall back to defaults.
type TunerOptions struct {
	// Step is the rate delta applied per adjustment.
	Step float64
	// SuccessStreak is how many consecutive successes are required before
	// the rate is nudged up.
	SuccessStreak int
	// Interval is the minimum time between adjustments in either
	// direction.
	Interval time.Duration
	Logger   *slog.Logger
}

// Tuner probes for headroom in the unpublished upstream rate limit. Callers
// feed it per-call outcomes; after a long enough streak of successes it
// raises the controller's rate by one step, and after any failure in the
// window it lowers it by one step. Adjustments happen at most once per
// interval so a change can be observed before the next one. The controller
// clamps, so the tuner never tracks bounds itself.
type Tuner struct {
	mu          sync.Mutex
	ctrl        RateController
	streak      int
	sawFailure  bool
	windowStart time.Time

	step     float64
	required int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewTuner creates a Tuner driving ctrl.
func NewTuner(ctrl RateController, opts TunerOptions) *Tuner {
	if opts.Step == 0 {
		opts.Step = DefaultTunerStep
	}
	if opts.SuccessStreak <= 0 {
		opts.SuccessStreak = DefaultTunerSuccessStreak
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultTunerInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tuner{
		ctrl:        ctrl,
		windowStart: time.Now(),
		step:        opts.Step,
		required:    opts.SuccessStreak,
		interval:    opts.Interval,
		logger:      opts.Logger.With("component", "tuner"),
		now:         time.Now,
	}
}

// Observe records one call outcome and applies at most one rate adjustment
// per interval.
func (t *Tuner) Observe(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if success {
		t.streak++
	} else {
		t.sawFailure = true
		t.streak = 0
	}

	now := t.now()
	if now.Sub(t.windowStart) < t.interval {
		return
	}

	cur := t.ctrl.RequestsPerSecond()
	switch {
	case t.sawFailure:
		applied := t.ctrl.SetRequestsPerSecond(cur - t.step)
		t.logger.Info("tuned down", "from", cur, "to", applied)
		t.sawFailure = false
		t.windowStart = now
	case t.streak >= t.required:
		applied := t.ctrl.SetRequestsPerSecond(cur + t.step)
		t.logger.Info("tuned up", "from", cur, "to", applied, "streak", t.streak)
		t.streak = 0
		t.windowStart = now
	}
}

// Reset clears accumulated evidence. The cooldown coordinator calls this on
// entering cooldown so stale successes cannot trigger a raise right after
// recovery.
func (t *Tuner) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streak = 0
	t.sawFailure = false
	t.windowStart = t.now()
}
