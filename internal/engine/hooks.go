package engine

import (
	"context"
	"fmt"

	"github.com/JoyBoyak31/demo-volume-bot/internal/cooldown"
	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/jupiter"
	"github.com/JoyBoyak31/demo-volume-bot/internal/queue"
)

// Recovery hooks handed to the cooldown coordinator. All aggregator traffic
// here runs at high priority: during recovery the queue is the coordinator's
// private channel and probes must not sit behind leftover worker items.

// canaryProbe issues one minimal quote. The cache is bypassed; a probe that
// can be answered from memory proves nothing about the upstream limit.
func (e *Engine) canaryProbe(ctx context.Context) error {
	return e.queue.Do(ctx, queue.High, func(ctx context.Context) error {
		_, err := e.quotes.Quote(ctx, jupiter.QuoteRequest{
			InputMint:   solMint,
			OutputMint:  e.cfg.Token.Mint,
			Amount:      e.cfg.MinBuyLamports(),
			SlippageBps: e.cfg.Token.SlippageBps,
		})
		return err
	})
}

// buildSellQueue snapshots which wallets still hold the session token.
// Balance reads go straight to the RPC node, so a wallet that cannot be
// read is skipped rather than treated as a rate-limit signal.
func (e *Engine) buildSellQueue(ctx context.Context) ([]cooldown.SellItem, error) {
	var items []cooldown.SellItem
	for _, kp := range e.wallets.List() {
		held, err := e.ledger.TokenBalance(ctx, kp.PublicKey(), e.cfg.Token.Mint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("inventory check failed", "wallet", shortKey(kp.PublicKey()), "error", err)
			continue
		}
		if held > 0 {
			items = append(items, cooldown.SellItem{Wallet: kp.PublicKey(), Amount: held})
		}
	}
	return items, nil
}

// liquidate sells one drained position at high priority.
func (e *Engine) liquidate(ctx context.Context, item cooldown.SellItem) error {
	kp, ok := e.wallets.Lookup(item.Wallet)
	if !ok {
		return fmt.Errorf("unknown wallet %s", shortKey(item.Wallet))
	}
	return e.sell(ctx, kp, item.Amount, queue.High)
}

// tradeCycle runs one full buy and sell on the designated wallet. It is the
// coordinator's end-to-end check that normal trading can resume.
func (e *Engine) tradeCycle(ctx context.Context) error {
	kp, ok := e.wallets.Canary()
	if !ok {
		return fmt.Errorf("no wallets")
	}
	if err := e.buy(ctx, kp, e.cfg.MinBuyLamports(), queue.High); err != nil {
		return err
	}
	held, err := e.ledger.TokenBalance(ctx, kp.PublicKey(), e.cfg.Token.Mint)
	if err != nil {
		return err
	}
	if held == 0 {
		return nil
	}
	if err := e.sell(ctx, kp, held, queue.High); err != nil && !domain.IsDust(err) {
		return err
	}
	return nil
}
