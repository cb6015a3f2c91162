package engine

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/config"
	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/jupiter"
	"github.com/JoyBoyak31/demo-volume-bot/internal/notify"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage/memory"
	"github.com/JoyBoyak31/demo-volume-bot/internal/wallet"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/require"
)

const testMint = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"

// fakeQuotes is an in-memory aggregator. The default behavior quotes every
// request at a 2x output and builds a valid-looking swap; tests override
// quoteFn and swapFn for failure paths.
type fakeQuotes struct {
	mu       sync.Mutex
	quoteFn  func(req jupiter.QuoteRequest) (*jupiter.Quote, error)
	swapFn   func(q *jupiter.Quote, user string) (*jupiter.SwapResponse, error)
	requests []jupiter.QuoteRequest
	builds   int
}

func (f *fakeQuotes) Quote(_ context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.quoteFn
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &jupiter.Quote{
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		InAmount:   strconv.FormatUint(req.Amount, 10),
		OutAmount:  strconv.FormatUint(req.Amount*2, 10),
	}, nil
}

func (f *fakeQuotes) BuildSwap(_ context.Context, q *jupiter.Quote, user string) (*jupiter.SwapResponse, error) {
	f.mu.Lock()
	f.builds++
	fn := f.swapFn
	f.mu.Unlock()
	if fn != nil {
		return fn(q, user)
	}
	return &jupiter.SwapResponse{SwapTransaction: "dGVzdC10eA==", LastValidBlockHeight: 100}, nil
}

func (f *fakeQuotes) quoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeQuotes) buildCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

func (f *fakeQuotes) lastRequest() jupiter.QuoteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// fakeLedger is an in-memory chain. Every wallet holds defaultTokens of the
// session token unless the tokens map pins specific balances.
type fakeLedger struct {
	mu            sync.Mutex
	tokens        map[string]uint64
	defaultTokens uint64
	tokenErr      error
	execErr       error
	confirmErr    error
	executed      int
}

func (f *fakeLedger) Balance(context.Context, string) (uint64, error) {
	return 1_000_000_000, nil
}

func (f *fakeLedger) TokenBalance(_ context.Context, w, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return 0, f.tokenErr
	}
	if f.tokens != nil {
		return f.tokens[w], nil
	}
	return f.defaultTokens, nil
}

func (f *fakeLedger) Execute(_ context.Context, _ string, _ types.Account) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return "", f.execErr
	}
	f.executed++
	return "sig-" + strconv.Itoa(f.executed), nil
}

func (f *fakeLedger) Confirm(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmErr
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakeNotifier) Notify(_ context.Context, e notify.Event, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeNotifier) saw(e notify.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.events {
		if got == e {
			return true
		}
	}
	return false
}

// testConfig trims every delay so a full cycle completes in well under a
// second of queue pacing.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Token.Mint = testMint
	cfg.Wallets.Count = 2
	cfg.Trading.PhaseDelayMinSec = 0
	cfg.Trading.PhaseDelayMaxSec = 0
	cfg.Trading.CycleDelayMinSec = 0
	cfg.Trading.CycleDelayMaxSec = 0
	cfg.Queue.RequestsPerSecond = 10
	cfg.Queue.MaxConcurrent = 4
	cfg.Cooldown.FailureThreshold = 2
	cfg.Cooldown.FailureWindowSec = 5
	cfg.Cooldown.HoldSec = 1
	cfg.Cooldown.MaxHoldSec = 2
	cfg.Cooldown.MaxConsecutive = 2
	cfg.Storage.StatIntervalSec = 1
	cfg.Storage.FlushIntervalSec = 1
	return cfg
}

type testEngine struct {
	*Engine
	quotes   *fakeQuotes
	ledger   *fakeLedger
	notifier *fakeNotifier
	trades   *memory.TradeRecordStore
	stats    *memory.VolumeStatStore
	kps      []wallet.Keypair
}

func newTestEngine(t *testing.T, cfg *config.Config, quotes *fakeQuotes, ledger *fakeLedger) *testEngine {
	t.Helper()
	kps := make([]wallet.Keypair, cfg.Wallets.Count)
	for i := range kps {
		kps[i] = wallet.Generate()
	}
	trades := memory.NewTradeRecordStore()
	stats := memory.NewVolumeStatStore()
	notifier := &fakeNotifier{}
	e, err := New(Options{
		Config:   cfg,
		RunID:    "run-test",
		Wallets:  wallet.NewManager(kps),
		Quotes:   quotes,
		Ledger:   ledger,
		Trades:   trades,
		Stats:    stats,
		Notifier: notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return &testEngine{Engine: e, quotes: quotes, ledger: ledger, notifier: notifier, trades: trades, stats: stats, kps: kps}
}

// startQueue runs just the execution queue, for tests that call trade paths
// directly instead of going through Run.
func startQueue(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.queue.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNewValidatesOptions(t *testing.T) {
	cfg := testConfig()
	kps := []wallet.Keypair{wallet.Generate()}
	base := func() Options {
		return Options{
			Config:  cfg,
			RunID:   "r",
			Wallets: wallet.NewManager(kps),
			Quotes:  &fakeQuotes{},
			Ledger:  &fakeLedger{},
			Trades:  memory.NewTradeRecordStore(),
		}
	}

	if _, err := New(base()); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}

	for name, mutate := range map[string]func(*Options){
		"nil config":  func(o *Options) { o.Config = nil },
		"empty runID": func(o *Options) { o.RunID = "" },
		"no wallets":  func(o *Options) { o.Wallets = wallet.NewManager(nil) },
		"nil quotes":  func(o *Options) { o.Quotes = nil },
		"nil ledger":  func(o *Options) { o.Ledger = nil },
		"nil trades":  func(o *Options) { o.Trades = nil },
	} {
		opts := base()
		mutate(&opts)
		if _, err := New(opts); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRunGeneratesVolume(t *testing.T) {
	cfg := testConfig()
	quotes := &fakeQuotes{}
	ledger := &fakeLedger{defaultTokens: 50_000}
	te := newTestEngine(t, cfg, quotes, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- te.Run(ctx) }()

	require.Eventually(t, func() bool {
		all, err := te.trades.GetAll(context.Background())
		require.NoError(t, err)
		var buys, sells int
		for _, tr := range all {
			if tr.Status != domain.StatusConfirmed {
				continue
			}
			switch tr.Side {
			case domain.SideBuy:
				buys++
			case domain.SideSell:
				sells++
			}
		}
		return buys >= 2 && sells >= 2
	}, 10*time.Second, 50*time.Millisecond, "expected confirmed buys and sells from both workers")

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}

	all, err := te.trades.GetAll(context.Background())
	require.NoError(t, err)
	for _, tr := range all {
		require.Equal(t, "run-test", tr.RunID)
		if tr.Status == domain.StatusConfirmed {
			require.NotEmpty(t, tr.Signature)
			require.NotNil(t, tr.ConfirmedAt)
			require.NotZero(t, tr.QuotedOutAmount)
		}
	}

	// The final flush persists whatever bucket was open.
	stats, err := te.stats.GetByRunID(context.Background(), "run-test")
	require.NoError(t, err)
	require.NotEmpty(t, stats)
	var buys, sells uint32
	for _, s := range stats {
		buys += s.Buys
		sells += s.Sells
		require.Equal(t, "run-test", s.RunID)
	}
	require.GreaterOrEqual(t, buys, uint32(2))
	require.GreaterOrEqual(t, sells, uint32(2))

	require.True(t, te.notifier.saw(notify.EventSessionStarted))
	require.True(t, te.notifier.saw(notify.EventSessionStopped))
}

func TestRunReturnsErrHaltedOnFatalStop(t *testing.T) {
	cfg := testConfig()
	quotes := &fakeQuotes{
		quoteFn: func(jupiter.QuoteRequest) (*jupiter.Quote, error) {
			return nil, domain.ErrRateLimited
		},
	}
	// Nothing to drain, so the failed canary escalates straight to the
	// consecutive-cooldown ceiling.
	ledger := &fakeLedger{tokens: map[string]uint64{}}
	te := newTestEngine(t, cfg, quotes, ledger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := te.Run(ctx)
	require.ErrorIs(t, err, domain.ErrHalted)
	require.NoError(t, ctx.Err(), "halt should come from the coordinator, not the test timeout")

	require.True(t, te.notifier.saw(notify.EventCooldownEntered))
	require.True(t, te.notifier.saw(notify.EventFatalStop))

	all, gerr := te.trades.GetAll(context.Background())
	require.NoError(t, gerr)
	require.NotEmpty(t, all)
	for _, tr := range all {
		require.Equal(t, domain.StatusFailed, tr.Status)
		require.Equal(t, domain.ErrorKindRateLimit, tr.ErrorKind)
	}
}

func TestRunStopsWorkersOnCancelDuringCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Cooldown.MaxConsecutive = 10
	cfg.Cooldown.HoldSec = 60

	quotes := &fakeQuotes{
		quoteFn: func(jupiter.QuoteRequest) (*jupiter.Quote, error) {
			return nil, domain.ErrRateLimited
		},
	}
	ledger := &fakeLedger{tokens: map[string]uint64{}}
	te := newTestEngine(t, cfg, quotes, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- te.Run(ctx) }()

	// Wait until the rate limits have pushed the coordinator into cooldown,
	// then cancel mid-hold.
	require.Eventually(t, func() bool {
		return te.notifier.saw(notify.EventCooldownEntered)
	}, 10*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop while holding in cooldown")
	}
}
