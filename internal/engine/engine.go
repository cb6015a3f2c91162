// Package engine runs a trading session: it owns the execution queue, the
// quote cache, the cooldown coordinator and one worker goroutine per wallet,
// and records every attempted trade plus per-interval volume aggregates.
//
// The engine talks to the quote aggregator only through the queue so that
// every aggregator call is paced; chain reads and transaction submission go
// straight to the RPC node, which has its own limits and is not the scarce
// resource here.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/config"
	"github.com/JoyBoyak31/demo-volume-bot/internal/cooldown"
	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/jupiter"
	"github.com/JoyBoyak31/demo-volume-bot/internal/notify"
	"github.com/JoyBoyak31/demo-volume-bot/internal/queue"
	"github.com/JoyBoyak31/demo-volume-bot/internal/quotecache"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
	"github.com/JoyBoyak31/demo-volume-bot/internal/wallet"

	"github.com/blocto/solana-go-sdk/types"
)

// Wrapped SOL, the input mint of every buy and the output mint of every sell.
const solMint = "So11111111111111111111111111111111111111112"

// QuoteService is the slice of the aggregator client the engine uses.
type QuoteService interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (*jupiter.SwapResponse, error)
}

// Ledger is the slice of the chain client the engine uses.
type Ledger interface {
	Balance(ctx context.Context, wallet string) (uint64, error)
	TokenBalance(ctx context.Context, wallet, mint string) (uint64, error)
	Execute(ctx context.Context, txBase64 string, signer types.Account) (string, error)
	Confirm(ctx context.Context, signature string) error
}

// Options configures an Engine. Config, RunID, Wallets, Quotes, Ledger and
// Trades are required; the rest fall back to defaults.
type Options struct {
	Config  *config.Config
	RunID   string
	Wallets *wallet.Manager
	Quotes  QuoteService
	Ledger  Ledger

	Trades storage.TradeRecordStore
	Stats  storage.VolumeStatStore

	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Engine coordinates one trading session across all wallets.
type Engine struct {
	cfg     *config.Config
	runID   string
	wallets *wallet.Manager
	quotes  QuoteService
	ledger  Ledger
	trades  storage.TradeRecordStore
	stats   storage.VolumeStatStore

	queue    *queue.Queue
	cache    *quotecache.Cache
	tuner    *queue.Tuner
	coord    *cooldown.Coordinator
	notifier notify.Notifier
	logger   *slog.Logger

	statInterval  time.Duration
	flushInterval time.Duration

	mu      sync.Mutex
	buckets map[int64]*statBucket
}

// New wires an Engine from its options. The queue, cache, tuner and cooldown
// coordinator are built here so their knobs all come from one config.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if opts.RunID == "" {
		return nil, fmt.Errorf("engine: run id is required")
	}
	if opts.Wallets == nil || opts.Wallets.Count() == 0 {
		return nil, fmt.Errorf("engine: at least one wallet is required")
	}
	if opts.Quotes == nil || opts.Ledger == nil {
		return nil, fmt.Errorf("engine: quote service and ledger are required")
	}
	if opts.Trades == nil {
		return nil, fmt.Errorf("engine: trade store is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	e := &Engine{
		cfg:      cfg,
		runID:    opts.RunID,
		wallets:  opts.Wallets,
		quotes:   opts.Quotes,
		ledger:   opts.Ledger,
		trades:   opts.Trades,
		stats:    opts.Stats,
		notifier: opts.Notifier,
		logger:   opts.Logger.With("component", "engine"),
		buckets:  make(map[int64]*statBucket),
	}

	e.statInterval = time.Duration(cfg.Storage.StatIntervalSec) * time.Second
	if e.statInterval <= 0 {
		e.statInterval = time.Minute
	}
	e.flushInterval = time.Duration(cfg.Storage.FlushIntervalSec) * time.Second
	if e.flushInterval <= 0 {
		e.flushInterval = 30 * time.Second
	}

	e.queue = queue.New(queue.Options{
		RequestsPerSecond: cfg.Queue.RequestsPerSecond,
		MaxConcurrent:     cfg.Queue.MaxConcurrent,
		Logger:            opts.Logger,
	})
	e.cache = quotecache.New(quotecache.Options{
		TTL:             time.Duration(cfg.Cache.TTLSec) * time.Second,
		CleanupInterval: time.Duration(cfg.Cache.SweepSec) * time.Second,
		BucketSize:      cfg.Cache.BucketLamports,
		Logger:          opts.Logger,
	})
	e.tuner = queue.NewTuner(e.queue, queue.TunerOptions{Logger: opts.Logger})
	e.coord = cooldown.New(cooldown.Options{
		Config: cooldown.Config{
			FailureThreshold: cfg.Cooldown.FailureThreshold,
			FailureWindow:    time.Duration(cfg.Cooldown.FailureWindowSec) * time.Second,
			BaseHold:         time.Duration(cfg.Cooldown.HoldSec) * time.Second,
			MaxHold:          time.Duration(cfg.Cooldown.MaxHoldSec) * time.Second,
			MaxConsecutive:   cfg.Cooldown.MaxConsecutive,
			RecoveryRate:     cfg.Cooldown.RecoveryRateFactor,
			RecoveryGrace:    time.Duration(cfg.Cooldown.RecoveryGraceSec) * time.Second,
		},
		Rate: e.queue,
		Hooks: cooldown.Hooks{
			Canary:         e.canaryProbe,
			BuildSellQueue: e.buildSellQueue,
			Liquidate:      e.liquidate,
			TradeCycle:     e.tradeCycle,
		},
		Notifier:   opts.Notifier,
		TunerReset: e.tuner.Reset,
		Logger:     opts.Logger,
	})
	return e, nil
}

// RunID returns the session identifier trades are recorded under.
func (e *Engine) RunID() string { return e.runID }

// Run blocks until ctx is cancelled or the cooldown coordinator declares a
// fatal stop. On fatal stop it returns domain.ErrHalted; on a clean shutdown
// it returns nil. Remaining volume aggregates are flushed before returning
// either way.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.notifier.Notify(ctx, notify.EventSessionStarted, map[string]any{
		"run_id":  e.runID,
		"wallets": e.wallets.Count(),
		"mint":    e.cfg.Token.Mint,
	})
	e.logger.Info("session started",
		"run_id", e.runID,
		"wallets", e.wallets.Count(),
		"rate", e.queue.RequestsPerSecond())

	var wg sync.WaitGroup
	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	run(e.queue.Run)
	run(e.cache.Run)
	run(e.coord.Run)
	run(e.flushLoop)

	// A fatal stop tears the whole session down, sells included.
	run(func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-e.coord.Halted():
			cancel()
		}
	})

	for i, kp := range e.wallets.List() {
		run(func(ctx context.Context) {
			e.runWorker(ctx, i, kp)
		})
	}

	wg.Wait()

	// The session context is gone by now; give the final flush its own
	// bounded one so shutdown cannot lose the last buckets.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	e.flushStats(flushCtx, true)

	cs := e.cache.Stats()
	e.logger.Info("quote cache",
		"hits", cs.Hits,
		"misses", cs.Misses,
		"evictions", cs.Evictions,
		"hit_rate", cs.HitRate())

	halted := e.coord.State() == cooldown.StateHalted
	e.notifier.Notify(flushCtx, notify.EventSessionStopped, map[string]any{
		"run_id": e.runID,
		"halted": halted,
	})
	e.logger.Info("session stopped", "run_id", e.runID, "halted", halted)

	if halted {
		return domain.ErrHalted
	}
	return nil
}

// flushLoop periodically persists completed volume buckets.
func (e *Engine) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.flushStats(ctx, false)
		}
	}
}
