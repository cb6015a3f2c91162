package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blocto/solana-go-sdk/types"
)

const (
	// DefaultRentBuffer covers rent exemption for a 165 byte token account
	// plus a margin, charged once when the account does not exist yet.
	DefaultRentBuffer = 2_100_000
	// DefaultFeeReserve is left behind on sweep so the wallet can still pay
	// transaction fees.
	DefaultFeeReserve = 1_000_000
)

// Ledger is the subset of ledger operations funding needs.
type Ledger interface {
	Balance(ctx context.Context, wallet string) (uint64, error)
	AccountExists(ctx context.Context, address string) (bool, error)
	Transfer(ctx context.Context, from types.Account, to string, lamports uint64) (string, error)
	Confirm(ctx context.Context, signature string) error
}

// FunderOptions configures a Funder. Zero values get defaults.
type FunderOptions struct {
	Ledger     Ledger
	RentBuffer uint64
	FeeReserve uint64
	Logger     *slog.Logger
}

// Funder moves SOL between the funding wallet and the trading wallets.
type Funder struct {
	ledger     Ledger
	rentBuffer uint64
	feeReserve uint64
	logger     *slog.Logger
}

// NewFunder creates a Funder.
func NewFunder(opts FunderOptions) *Funder {
	if opts.RentBuffer == 0 {
		opts.RentBuffer = DefaultRentBuffer
	}
	if opts.FeeReserve == 0 {
		opts.FeeReserve = DefaultFeeReserve
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Funder{
		ledger:     opts.Ledger,
		rentBuffer: opts.RentBuffer,
		feeReserve: opts.FeeReserve,
		logger:     opts.Logger.With("component", "funder"),
	}
}

// Distribute tops every wallet up to the per-wallet budget from the funding
// keypair. Wallets whose token account for mint does not exist yet get the
// rent buffer on top, so the first swap can create it. Returns the number of
// wallets that received a transfer.
func (f *Funder) Distribute(ctx context.Context, funder Keypair, wallets []Keypair, mint string, perWallet uint64) (int, error) {
	available, err := f.ledger.Balance(ctx, funder.PublicKey())
	if err != nil {
		return 0, fmt.Errorf("funder balance: %w", err)
	}

	funded := 0
	for _, w := range wallets {
		target := perWallet

		tokenAccount, err := AssociatedTokenAddress(w.PublicKey(), mint)
		if err != nil {
			return funded, fmt.Errorf("derive token account for %s: %w", w.PublicKey(), err)
		}
		exists, err := f.ledger.AccountExists(ctx, tokenAccount)
		if err != nil {
			return funded, fmt.Errorf("check token account for %s: %w", w.PublicKey(), err)
		}
		if !exists {
			target += f.rentBuffer
		}

		balance, err := f.ledger.Balance(ctx, w.PublicKey())
		if err != nil {
			return funded, fmt.Errorf("balance of %s: %w", w.PublicKey(), err)
		}
		if balance >= target {
			f.logger.Debug("wallet already funded", "wallet", w.PublicKey(), "balance", balance)
			continue
		}

		amount := target - balance
		if amount > available {
			return funded, fmt.Errorf("funder exhausted: need %d lamports for %s, have %d", amount, w.PublicKey(), available)
		}

		sig, err := f.ledger.Transfer(ctx, funder.Account(), w.PublicKey(), amount)
		if err != nil {
			return funded, fmt.Errorf("fund %s: %w", w.PublicKey(), err)
		}
		if err := f.ledger.Confirm(ctx, sig); err != nil {
			return funded, fmt.Errorf("confirm funding of %s: %w", w.PublicKey(), err)
		}

		available -= amount
		funded++
		f.logger.Info("wallet funded", "wallet", w.PublicKey(), "lamports", amount, "signature", sig)
	}

	return funded, nil
}

// Sweep returns residual SOL from the wallets to the destination, keeping the
// fee reserve behind. Wallets that fail are skipped and reported together so
// one dead wallet does not strand the rest.
func (f *Funder) Sweep(ctx context.Context, wallets []Keypair, to string) (uint64, error) {
	var swept uint64
	var errs []error

	for _, w := range wallets {
		balance, err := f.ledger.Balance(ctx, w.PublicKey())
		if err != nil {
			errs = append(errs, fmt.Errorf("balance of %s: %w", w.PublicKey(), err))
			continue
		}
		if balance <= f.feeReserve {
			continue
		}

		amount := balance - f.feeReserve
		sig, err := f.ledger.Transfer(ctx, w.Account(), to, amount)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", w.PublicKey(), err))
			continue
		}
		if err := f.ledger.Confirm(ctx, sig); err != nil {
			errs = append(errs, fmt.Errorf("confirm sweep of %s: %w", w.PublicKey(), err))
			continue
		}

		swept += amount
		f.logger.Info("wallet swept", "wallet", w.PublicKey(), "lamports", amount, "signature", sig)
	}

	return swept, errors.Join(errs...)
}
