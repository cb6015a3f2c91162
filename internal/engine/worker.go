package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/cooldown"
	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/jupiter"
	"github.com/JoyBoyak31/demo-volume-bot/internal/observability"
	"github.com/JoyBoyak31/demo-volume-bot/internal/queue"
	"github.com/JoyBoyak31/demo-volume-bot/internal/wallet"

	"github.com/google/uuid"
)

const (
	// transientRetries bounds attempts per aggregator call. Only quote and
	// swap-build calls are retried; submission is not, because a transaction
	// that timed out on confirmation may still land later.
	transientRetries = 3
	retryBackoff     = 500 * time.Millisecond
)

// runWorker drives one wallet's buy/sell cycles until shutdown or halt.
func (e *Engine) runWorker(ctx context.Context, idx int, kp wallet.Keypair) {
	logger := e.logger.With("worker", idx, "wallet", shortKey(kp.PublicKey()))
	logger.Info("worker started")
	defer logger.Info("worker stopped")

	for {
		// Buys gate on the cooldown state; sells inside the cycle do not.
		if err := e.coord.AwaitNormal(ctx); err != nil {
			return
		}
		e.cycle(ctx, kp, logger)
		if !sleepRange(ctx, e.cfg.Trading.CycleDelayMinSec, e.cfg.Trading.CycleDelayMaxSec) {
			return
		}
	}
}

// cycle runs one buy, waits out the phase delay, then sells whatever the
// wallet holds. A failed buy skips the sell; the inventory drain picks up
// anything stranded by earlier cycles.
func (e *Engine) cycle(ctx context.Context, kp wallet.Keypair, logger *slog.Logger) {
	amount := e.randomBuyAmount()
	if err := e.buy(ctx, kp, amount, queue.Normal); err != nil {
		e.observe(err)
		if !terminal(ctx, err) {
			logger.Warn("buy failed", "lamports", amount, "error", err)
		}
		return
	}
	e.observe(nil)

	if !sleepRange(ctx, e.cfg.Trading.PhaseDelayMinSec, e.cfg.Trading.PhaseDelayMaxSec) {
		return
	}

	held, err := e.ledger.TokenBalance(ctx, kp.PublicKey(), e.cfg.Token.Mint)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("inventory check failed", "error", err)
		}
		return
	}
	if held == 0 {
		return
	}

	if err := e.sell(ctx, kp, held, queue.Normal); err != nil {
		e.observe(err)
		if !terminal(ctx, err) {
			logger.Warn("sell failed", "tokens", held, "error", err)
		}
		return
	}
	e.observe(nil)
}

// buy swaps lamports of SOL into the session token and records the attempt.
func (e *Engine) buy(ctx context.Context, kp wallet.Keypair, lamports uint64, pri queue.Priority) error {
	start := time.Now()
	rec := &domain.TradeRecord{
		TradeID:    uuid.NewString(),
		RunID:      e.runID,
		Wallet:     kp.PublicKey(),
		Side:       domain.SideBuy,
		InputMint:  solMint,
		OutputMint: e.cfg.Token.Mint,
		InAmount:   lamports,
		CreatedAt:  start.UTC(),
	}
	err := e.executeTrade(ctx, kp, rec, pri)
	e.finishTrade(rec, start, err)
	return err
}

// sell swaps tokens of the session token back into SOL and records the
// attempt.
func (e *Engine) sell(ctx context.Context, kp wallet.Keypair, tokens uint64, pri queue.Priority) error {
	start := time.Now()
	rec := &domain.TradeRecord{
		TradeID:    uuid.NewString(),
		RunID:      e.runID,
		Wallet:     kp.PublicKey(),
		Side:       domain.SideSell,
		InputMint:  e.cfg.Token.Mint,
		OutputMint: solMint,
		InAmount:   tokens,
		CreatedAt:  start.UTC(),
	}
	err := e.executeTrade(ctx, kp, rec, pri)
	e.finishTrade(rec, start, err)
	return err
}

// executeTrade runs the quote, build, submit, confirm pipeline for one side.
// Aggregator calls go through the queue at the given priority; the chain
// leg talks to the RPC node directly.
func (e *Engine) executeTrade(ctx context.Context, kp wallet.Keypair, rec *domain.TradeRecord, pri queue.Priority) error {
	quote, err := e.fetchQuote(ctx, rec.InputMint, rec.OutputMint, rec.InAmount, pri)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	if out, perr := quote.ParseOutAmount(); perr == nil {
		rec.QuotedOutAmount = out
	}

	var swap *jupiter.SwapResponse
	err = withTransientRetries(ctx, func(ctx context.Context) error {
		return e.queue.Do(ctx, pri, func(ctx context.Context) error {
			s, err := e.quotes.BuildSwap(ctx, quote, kp.PublicKey())
			if err != nil {
				return err
			}
			swap = s
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("build swap: %w", err)
	}

	sig, err := e.ledger.Execute(ctx, swap.SwapTransaction, kp.Account())
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	rec.Signature = sig

	if err := e.ledger.Confirm(ctx, sig); err != nil {
		return fmt.Errorf("confirm %s: %w", sig, err)
	}
	rec.OutAmount = rec.QuotedOutAmount
	return nil
}

// fetchQuote serves from the cache when it can; on a miss the aggregator
// call is paced through the queue and the result cached for neighbours.
func (e *Engine) fetchQuote(ctx context.Context, inputMint, outputMint string, amount uint64, pri queue.Priority) (*jupiter.Quote, error) {
	if q, ok := e.cache.Get(inputMint, outputMint, amount); ok {
		return q, nil
	}
	var quote *jupiter.Quote
	err := withTransientRetries(ctx, func(ctx context.Context) error {
		return e.queue.Do(ctx, pri, func(ctx context.Context) error {
			q, err := e.quotes.Quote(ctx, jupiter.QuoteRequest{
				InputMint:   inputMint,
				OutputMint:  outputMint,
				Amount:      amount,
				SlippageBps: e.cfg.Token.SlippageBps,
			})
			if err != nil {
				return err
			}
			quote = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.cache.Set(inputMint, outputMint, amount, quote)
	return quote, nil
}

// finishTrade stamps latency and status on the record, persists it and
// folds it into the current volume bucket.
func (e *Engine) finishTrade(rec *domain.TradeRecord, start time.Time, err error) {
	rec.LatencyMs = time.Since(start).Milliseconds()
	switch {
	case err == nil:
		now := time.Now().UTC()
		rec.Status = domain.StatusConfirmed
		rec.ConfirmedAt = &now
	case domain.IsDust(err):
		rec.Status = domain.StatusSkipped
		rec.ErrorKind = domain.ClassifyError(err)
	default:
		rec.Status = domain.StatusFailed
		rec.ErrorKind = domain.ClassifyError(err)
	}

	// Persist with a fresh context: trades finishing during shutdown still
	// belong in the log.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ierr := e.trades.Insert(ctx, rec); ierr != nil {
		e.logger.Error("trade insert failed", "trade_id", rec.TradeID, "error", ierr)
	}

	volume := rec.InAmount
	if rec.Side == domain.SideSell {
		volume = rec.OutAmount
	}
	observability.RecordTrade(strings.ToLower(rec.Side), strings.ToLower(rec.Status), volume)
	if rec.Status == domain.StatusConfirmed {
		e.bucketTrade(rec)
	}
}

// observe feeds one call outcome into the cooldown coordinator and, while
// trading normally, into the rate tuner. Dust and shutdown are neither
// successes nor failures.
func (e *Engine) observe(err error) {
	switch {
	case err == nil:
		e.coord.RecordSuccess()
		if e.coord.State() == cooldown.StateNormal {
			e.tuner.Observe(true)
		}
	case domain.IsRateLimit(err):
		e.coord.RecordRateLimit()
	case domain.IsDust(err), domain.IsHalted(err), errors.Is(err, domain.ErrStopped), errors.Is(err, context.Canceled):
	default:
		if e.coord.State() == cooldown.StateNormal {
			e.tuner.Observe(false)
		}
	}
}

// withTransientRetries retries fn on transient failures only. Rate limits
// propagate immediately so the cooldown coordinator sees them unmuted, and
// dust is a verdict, not an error to retry.
func withTransientRetries(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= transientRetries {
			return err
		}
		if domain.IsRateLimit(err) || domain.IsDust(err) || domain.IsHalted(err) ||
			errors.Is(err, domain.ErrStopped) || ctx.Err() != nil {
			return err
		}
		if !sleepCtx(ctx, retryBackoff) {
			return ctx.Err()
		}
	}
}

// terminal reports whether err is a shutdown-shaped outcome not worth a
// warning log.
func terminal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || domain.IsHalted(err) || errors.Is(err, domain.ErrStopped)
}

func (e *Engine) randomBuyAmount() uint64 {
	lo, hi := e.cfg.MinBuyLamports(), e.cfg.MaxBuyLamports()
	if hi <= lo {
		return lo
	}
	return lo + uint64(rand.Int63n(int64(hi-lo+1)))
}

// sleepRange sleeps a uniform random duration between minSec and maxSec
// seconds. Returns false if ctx was cancelled first.
func sleepRange(ctx context.Context, minSec, maxSec int) bool {
	if maxSec < minSec {
		maxSec = minSec
	}
	d := time.Duration(minSec) * time.Second
	if spread := maxSec - minSec; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)*int64(time.Second) + 1))
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// shortKey trims a base58 key for log lines.
func shortKey(k string) string {
	if len(k) <= 8 {
		return k
	}
	return k[:4] + ".." + k[len(k)-4:]
}
