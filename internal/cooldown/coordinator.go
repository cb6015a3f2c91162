// Package cooldown implements the process-wide safety brake. The coordinator
// watches for repeated rate-limit failures across all workers, freezes buying
// through a broadcast gate, walks the recovery ladder (hold, canary probe,
// position drain, resumption probe) and only then reopens the gate at a
// reduced rate. Three consecutive cooldowns without a successful resume are
// treated as unrecoverable and halt the process for operator intervention.
package cooldown

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/notify"
	"github.com/JoyBoyak31/demo-volume-bot/internal/observability"
)

// Default configuration values.
const (
	DefaultFailureThreshold = 2
	DefaultFailureWindow    = 10 * time.Second
	DefaultBaseHold         = time.Minute
	DefaultMaxHold          = 10 * time.Minute
	DefaultMaxConsecutive   = 3
	DefaultRecoveryRate     = 0.5
	DefaultRecoveryGrace    = 2 * time.Minute
	DefaultProbeRetries     = 3
)

// State is the coordinator's mode.
type State int32

const (
	StateNormal State = iota
	StateCooldown
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateCooldown:
		return "cooldown"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// RateController is the slice of the execution queue the coordinator drives.
type RateController interface {
	SetRequestsPerSecond(v float64) float64
	RequestsPerSecond() float64
}

// SellItem is one unsold position discovered during the drain sweep.
type SellItem struct {
	Wallet string
	Amount uint64
}

// Hooks are the recovery actions the coordinator orchestrates. The engine
// provides them; each goes through the execution queue at high priority on
// the engine side. Nil hooks are skipped.
type Hooks struct {
	// Canary issues one minimal quote to test whether the limit cleared.
	Canary func(ctx context.Context) error
	// BuildSellQueue snapshots wallets still holding inventory.
	BuildSellQueue func(ctx context.Context) ([]SellItem, error)
	// Liquidate sells one position.
	Liquidate func(ctx context.Context, item SellItem) error
	// TradeCycle runs a full buy and sell on the designated wallet as the
	// end-to-end resumption check.
	TradeCycle func(ctx context.Context) error
}

// Config holds the state machine constants. Zero values fall back to
// defaults.
type Config struct {
	// FailureThreshold is how many consecutive rate-limit failures within
	// FailureWindow trigger a cooldown.
	FailureThreshold int
	FailureWindow    time.Duration
	// BaseHold is the first hold duration. Every further hold in the same
	// chain doubles it, capped at MaxHold.
	BaseHold time.Duration
	MaxHold  time.Duration
	// MaxConsecutive is the fatal-stop ceiling: reaching this many
	// cooldown entries without a full resume halts the process.
	MaxConsecutive int
	// RecoveryRate is the fraction of the pre-cooldown rate applied
	// during the grace window after a resume.
	RecoveryRate float64
	// RecoveryGrace is how long the reduced rate is held before the full
	// rate returns and the chain counters reset.
	RecoveryGrace time.Duration
	// ProbeRetries bounds in-place retries of a probe that fails with a
	// non-rate-limit error.
	ProbeRetries int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = DefaultFailureWindow
	}
	if c.BaseHold <= 0 {
		c.BaseHold = DefaultBaseHold
	}
	if c.MaxHold <= 0 {
		c.MaxHold = DefaultMaxHold
	}
	if c.MaxConsecutive <= 0 {
		c.MaxConsecutive = DefaultMaxConsecutive
	}
	if c.RecoveryRate <= 0 || c.RecoveryRate > 1 {
		c.RecoveryRate = DefaultRecoveryRate
	}
	if c.RecoveryGrace <= 0 {
		c.RecoveryGrace = DefaultRecoveryGrace
	}
	if c.ProbeRetries <= 0 {
		c.ProbeRetries = DefaultProbeRetries
	}
	return c
}

// Options configures a Coordinator. Rate must be non-nil; everything else
// has a usable default.
type Options struct {
	Config   Config
	Rate     RateController
	Hooks    Hooks
	Notifier notify.Notifier
	// TunerReset clears the adaptive rate signal's evidence on cooldown
	// entry so stale successes cannot push the rate up mid-recovery.
	TunerReset func()
	Logger     *slog.Logger
}

// Coordinator is the shared cooldown state machine. All mutation happens
// through its methods; workers only ever read it via AwaitNormal, State and
// Halted.
type Coordinator struct {
	cfg        Config
	rate       RateController
	hooks      Hooks
	notifier   notify.Notifier
	tunerReset func()
	logger     *slog.Logger
	gate       *Gate

	mu          sync.Mutex
	state       State
	failures    []time.Time
	hold        time.Duration
	consecutive int
	prevRate    float64

	enterc chan struct{}
	halted chan struct{}
}

// New creates a Coordinator in the Normal state. Run must be started for
// cooldowns to be processed.
func New(opts Options) *Coordinator {
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:        opts.Config.withDefaults(),
		rate:       opts.Rate,
		hooks:      opts.Hooks,
		notifier:   opts.Notifier,
		tunerReset: opts.TunerReset,
		logger:     opts.Logger.With("component", "cooldown"),
		gate:       NewGate(),
		enterc:     make(chan struct{}, 1),
		halted:     make(chan struct{}),
	}
}

// State returns the current mode.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Halted returns a channel closed on fatal stop. Workers select on it so
// sells, which ignore the gate, still stop permanently.
func (c *Coordinator) Halted() <-chan struct{} {
	return c.halted
}

// AwaitNormal blocks until buying may proceed. It returns domain.ErrHalted
// after a fatal stop and ctx.Err() if the caller's context ends first.
func (c *Coordinator) AwaitNormal(ctx context.Context) error {
	select {
	case <-c.halted:
		return domain.ErrHalted
	case <-ctx.Done():
		return ctx.Err()
	case <-c.gate.Ready():
		return nil
	}
}

// RecordRateLimit feeds one rate-limit-classified failure into the sliding
// window. Crossing the threshold while Normal requests a cooldown; outside
// Normal the machine is already reacting and the signal is dropped.
func (c *Coordinator) RecordRateLimit() {
	c.mu.Lock()
	if c.state != StateNormal {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	cutoff := now.Add(-c.cfg.FailureWindow)
	kept := c.failures[:0]
	for _, ts := range c.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.failures = append(kept, now)
	trigger := len(c.failures) >= c.cfg.FailureThreshold
	c.mu.Unlock()

	if trigger {
		select {
		case c.enterc <- struct{}{}:
		default:
		}
	}
}

// RecordSuccess breaks the consecutive-failure streak. Only rate-limit
// failures with no intervening success can accumulate to the threshold.
func (c *Coordinator) RecordSuccess() {
	c.mu.Lock()
	if c.state == StateNormal && len(c.failures) > 0 {
		c.failures = nil
	}
	c.mu.Unlock()
}

// Run processes cooldown requests until ctx ends or a fatal stop. It is the
// only goroutine that walks the state machine.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.enterc:
			if !c.cycle(ctx) {
				return
			}
		}
	}
}

// verdict classifies the outcome of one recovery stage.
type verdict int

const (
	verdictOK verdict = iota
	verdictRateLimited
	verdictTransient
	verdictAborted
)

type graceOutcome int

const (
	graceCompleted graceOutcome = iota
	graceRelapse
	graceAborted
)

// cycle runs one full cooldown chain: enter, hold, recover, resume, grace.
// It loops while rate-limit failures keep escalating the chain and returns
// false when the coordinator is done for good (fatal stop or ctx over).
func (c *Coordinator) cycle(ctx context.Context) bool {
	for {
		consecutive, hold, fresh := c.enter()
		if consecutive >= c.cfg.MaxConsecutive {
			c.fatalStop(ctx, consecutive)
			return false
		}
		if fresh {
			c.notifier.Notify(ctx, notify.EventCooldownEntered, map[string]any{
				"hold_seconds": hold.Seconds(),
				"consecutive":  consecutive,
			})
			c.logger.Warn("cooldown entered", "hold", hold, "consecutive", consecutive)
		} else {
			c.notifier.Notify(ctx, notify.EventCooldownExtended, map[string]any{
				"reason":       "rate_limited",
				"hold_seconds": hold.Seconds(),
				"consecutive":  consecutive,
			})
			c.logger.Warn("cooldown extended", "reason", "rate_limited", "hold", hold, "consecutive", consecutive)
		}

		switch c.holdAndRecover(ctx) {
		case verdictAborted:
			return false
		case verdictRateLimited:
			continue
		}

		switch c.resumeAndGrace(ctx) {
		case graceCompleted:
			return true
		case graceRelapse:
			continue
		default:
			return false
		}
	}
}

// enter moves the machine into Cooldown, extends the chain and shuts the
// gate. fresh reports whether the previous state was Normal, which
// distinguishes a new pause from an escalation inside one.
func (c *Coordinator) enter() (consecutive int, hold time.Duration, fresh bool) {
	c.mu.Lock()
	fresh = c.state == StateNormal
	c.state = StateCooldown
	c.failures = nil
	if c.consecutive == 0 {
		// Start of a chain: remember the rate to restore later. On
		// re-entry during grace the queue runs reduced, so the first
		// capture stays authoritative.
		c.prevRate = c.rate.RequestsPerSecond()
		c.hold = c.cfg.BaseHold
	} else {
		c.hold = minDuration(c.hold*2, c.cfg.MaxHold)
	}
	c.consecutive++
	consecutive, hold = c.consecutive, c.hold
	c.mu.Unlock()

	c.gate.Pause()
	if c.tunerReset != nil {
		c.tunerReset()
	}
	observability.RecordCooldownEntered(consecutive)
	return consecutive, hold, fresh
}

// holdAndRecover sleeps out the hold and attempts recovery, extending the
// hold on transient probe failures. Rate-limit verdicts bubble up so the
// caller can escalate the chain.
func (c *Coordinator) holdAndRecover(ctx context.Context) verdict {
	for {
		c.mu.Lock()
		hold := c.hold
		c.mu.Unlock()

		if !sleepCtx(ctx, hold) {
			return verdictAborted
		}

		v := c.attemptRecovery(ctx)
		if v != verdictTransient {
			return v
		}

		c.mu.Lock()
		c.hold = minDuration(c.hold*2, c.cfg.MaxHold)
		hold = c.hold
		c.mu.Unlock()

		c.notifier.Notify(ctx, notify.EventCooldownExtended, map[string]any{
			"reason":       "transient",
			"hold_seconds": hold.Seconds(),
		})
		c.logger.Warn("cooldown extended", "reason", "transient", "hold", hold)
	}
}

// attemptRecovery walks the recovery ladder in order. Any stage failing
// rate-limited aborts the attempt.
func (c *Coordinator) attemptRecovery(ctx context.Context) verdict {
	if v := c.runProbe(ctx, "canary", c.hooks.Canary); v != verdictOK {
		return v
	}
	if v := c.drain(ctx); v != verdictOK {
		return v
	}
	return c.runProbe(ctx, "resumption", c.hooks.TradeCycle)
}

// runProbe executes one probe with bounded in-place retries for transient
// failures. A rate-limit failure is never retried here; it means the limit
// has not cleared.
func (c *Coordinator) runProbe(ctx context.Context, stage string, probe func(context.Context) error) verdict {
	if probe == nil {
		return verdictOK
	}
	for attempt := 1; attempt <= c.cfg.ProbeRetries; attempt++ {
		err := probe(ctx)
		observability.RecordCanary(stage, err)
		switch {
		case err == nil:
			c.logger.Info("probe succeeded", "stage", stage, "attempt", attempt)
			return verdictOK
		case domain.IsRateLimit(err):
			c.logger.Warn("probe rate limited", "stage", stage)
			return verdictRateLimited
		case errors.Is(err, domain.ErrStopped) || ctx.Err() != nil:
			return verdictAborted
		}
		c.logger.Warn("probe failed", "stage", stage, "attempt", attempt, "error", err)
	}
	return verdictTransient
}

// drain liquidates every open position before trading resumes. Stranded
// inventory outlasting the pause is the one loss mode worse than a slow
// sale, so failures other than rate limits are logged and skipped rather
// than blocking the sweep.
func (c *Coordinator) drain(ctx context.Context) verdict {
	if c.hooks.BuildSellQueue == nil || c.hooks.Liquidate == nil {
		return verdictOK
	}
	items, err := c.hooks.BuildSellQueue(ctx)
	if err != nil {
		switch {
		case domain.IsRateLimit(err):
			return verdictRateLimited
		case errors.Is(err, domain.ErrStopped) || ctx.Err() != nil:
			return verdictAborted
		}
		c.logger.Error("sell queue build failed, skipping drain", "error", err)
		return verdictOK
	}
	if len(items) == 0 {
		return verdictOK
	}

	c.notifier.Notify(ctx, notify.EventDrainStarted, map[string]any{"positions": len(items)})
	c.logger.Info("draining positions", "count", len(items))

	sold, skipped := 0, 0
	for _, item := range items {
		if ctx.Err() != nil {
			return verdictAborted
		}
		err := c.hooks.Liquidate(ctx, item)
		switch {
		case err == nil:
			sold++
			observability.RecordDrainSell("sold")
		case domain.IsRateLimit(err):
			observability.RecordDrainSell("rate_limited")
			c.logger.Warn("drain hit rate limit", "wallet", item.Wallet)
			return verdictRateLimited
		case errors.Is(err, domain.ErrStopped):
			return verdictAborted
		case domain.IsDust(err):
			skipped++
			observability.RecordDrainSell("dust")
		default:
			skipped++
			observability.RecordDrainSell("failed")
			c.logger.Warn("drain sell failed", "wallet", item.Wallet, "error", err)
		}
	}

	c.notifier.Notify(ctx, notify.EventDrainCompleted, map[string]any{"sold": sold, "skipped": skipped})
	c.logger.Info("drain completed", "sold", sold, "skipped", skipped)
	return verdictOK
}

// resumeAndGrace reopens the gate at the reduced rate and waits out the
// grace window. Only surviving the whole window resets the chain counters;
// a relapse inside it keeps escalating.
func (c *Coordinator) resumeAndGrace(ctx context.Context) graceOutcome {
	c.mu.Lock()
	c.state = StateNormal
	c.failures = nil
	prev := c.prevRate
	c.mu.Unlock()

	reduced := c.rate.SetRequestsPerSecond(prev * c.cfg.RecoveryRate)
	c.gate.Resume()
	observability.RecordCooldownResumed()
	c.notifier.Notify(ctx, notify.EventCooldownResumed, map[string]any{
		"rate":          reduced,
		"grace_seconds": c.cfg.RecoveryGrace.Seconds(),
	})
	c.logger.Info("resumed at reduced rate", "rate", reduced, "grace", c.cfg.RecoveryGrace)

	timer := time.NewTimer(c.cfg.RecoveryGrace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return graceAborted
	case <-c.enterc:
		return graceRelapse
	case <-timer.C:
	}

	restored := c.rate.SetRequestsPerSecond(prev)
	c.mu.Lock()
	c.consecutive = 0
	c.hold = 0
	c.prevRate = 0
	c.mu.Unlock()
	c.logger.Info("full rate restored", "rate", restored)
	return graceCompleted
}

// fatalStop halts everything permanently. The gate stays shut; workers wake
// through the halted channel instead.
func (c *Coordinator) fatalStop(ctx context.Context, consecutive int) {
	c.mu.Lock()
	c.state = StateHalted
	c.mu.Unlock()
	close(c.halted)

	observability.RecordFatalStop()
	c.notifier.Notify(ctx, notify.EventFatalStop, map[string]any{
		"consecutive_cooldowns": consecutive,
	})
	c.logger.Error("fatal stop, operator intervention required", "consecutive", consecutive)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
