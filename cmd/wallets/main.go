package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/JoyBoyak31/demo-volume-bot/internal/config"
	"github.com/JoyBoyak31/demo-volume-bot/internal/session"
	"github.com/JoyBoyak31/demo-volume-bot/internal/solana"
	"github.com/JoyBoyak31/demo-volume-bot/internal/wallet"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	mode := flag.String("mode", "balances", "Action: generate, balances, fund, or sweep")
	count := flag.Int("count", 0, "Wallet count for generate (defaults to the configured count)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	// Component logs are discarded so the tool's stdout stays scannable;
	// results are printed directly.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := context.Background()

	switch *mode {
	case "generate":
		err = runGenerate(cfg, *count)
	case "balances":
		err = runBalances(ctx, cfg)
	case "fund":
		err = runFund(ctx, logger, cfg)
	case "sweep":
		err = runSweep(ctx, logger, cfg)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runGenerate creates a fresh session file with new wallets. An existing
// session is never overwritten: its wallets may still hold funds.
func runGenerate(cfg *config.Config, count int) error {
	if _, found, err := session.Load(cfg.Wallets.SessionFile); err != nil {
		return err
	} else if found {
		return fmt.Errorf("session file %s already exists; sweep and remove it before generating new wallets",
			cfg.Wallets.SessionFile)
	}

	if count <= 0 {
		count = cfg.Wallets.Count
	}
	kps := make([]wallet.Keypair, count)
	for i := range kps {
		kps[i] = wallet.Generate()
	}
	sess := session.New(cfg.Token.Mint, kps)
	if err := session.Save(cfg.Wallets.SessionFile, sess); err != nil {
		return err
	}

	fmt.Printf("Session %s created with %d wallets:\n", sess.RunID, count)
	for i, kp := range kps {
		fmt.Printf("  %2d  %s\n", i, kp.PublicKey())
	}
	fmt.Printf("Saved to %s (keep this file safe, it holds the secret keys)\n", cfg.Wallets.SessionFile)
	return nil
}

// runBalances prints SOL and token holdings for every session wallet.
func runBalances(ctx context.Context, cfg *config.Config) error {
	sess, kps, err := loadSessionWallets(cfg)
	if err != nil {
		return err
	}
	ledger := solana.NewClient(cfg.RPC.Endpoint)

	fmt.Printf("Session %s (%d wallets, mint %s)\n", sess.RunID, len(kps), sess.TokenMint)
	var totalSOL, totalTokens uint64
	for i, kp := range kps {
		sol, err := ledger.Balance(ctx, kp.PublicKey())
		if err != nil {
			return fmt.Errorf("balance of %s: %w", kp.PublicKey(), err)
		}
		tokens, err := ledger.TokenBalance(ctx, kp.PublicKey(), sess.TokenMint)
		if err != nil {
			return fmt.Errorf("token balance of %s: %w", kp.PublicKey(), err)
		}
		totalSOL += sol
		totalTokens += tokens
		fmt.Printf("  %2d  %s  %12s SOL  %12d tokens\n", i, kp.PublicKey(), lamportsToSOL(sol), tokens)
	}
	fmt.Printf("Total: %s SOL, %d tokens\n", lamportsToSOL(totalSOL), totalTokens)
	return nil
}

// runFund tops every session wallet up to the configured per-wallet budget.
func runFund(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	_, kps, err := loadSessionWallets(cfg)
	if err != nil {
		return err
	}
	funderKP, err := funderKeypair(cfg)
	if err != nil {
		return err
	}

	ledger := solana.NewClient(cfg.RPC.Endpoint)
	funder := wallet.NewFunder(wallet.FunderOptions{Ledger: ledger, Logger: logger})

	funded, err := funder.Distribute(ctx, funderKP, kps, cfg.Token.Mint, cfg.BudgetLamports())
	if err != nil {
		return err
	}
	fmt.Printf("Topped up %d of %d wallets to %s SOL each\n",
		funded, len(kps), cfg.Wallets.BudgetSOL.String())
	return nil
}

// runSweep returns residual SOL from the session wallets to the funder.
func runSweep(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	_, kps, err := loadSessionWallets(cfg)
	if err != nil {
		return err
	}
	funderKP, err := funderKeypair(cfg)
	if err != nil {
		return err
	}

	ledger := solana.NewClient(cfg.RPC.Endpoint)
	funder := wallet.NewFunder(wallet.FunderOptions{Ledger: ledger, Logger: logger})

	swept, err := funder.Sweep(ctx, kps, funderKP.PublicKey())
	if swept > 0 {
		fmt.Printf("Swept %s SOL back to %s\n", lamportsToSOL(swept), funderKP.PublicKey())
	}
	if err != nil {
		return fmt.Errorf("some wallets could not be swept: %w", err)
	}
	if swept == 0 {
		fmt.Println("Nothing to sweep")
	}
	return nil
}

func loadSessionWallets(cfg *config.Config) (session.Session, []wallet.Keypair, error) {
	sess, found, err := session.Load(cfg.Wallets.SessionFile)
	if err != nil {
		return session.Session{}, nil, err
	}
	if !found {
		return session.Session{}, nil, fmt.Errorf("no session file at %s; run -mode generate first", cfg.Wallets.SessionFile)
	}
	kps, err := sess.Keypairs()
	if err != nil {
		return session.Session{}, nil, err
	}
	return sess, kps, nil
}

func funderKeypair(cfg *config.Config) (wallet.Keypair, error) {
	if cfg.Wallets.FunderKey == "" {
		return wallet.Keypair{}, fmt.Errorf("wallets.funder_key is not configured (or set VOLUMEBOT_FUNDER_KEY)")
	}
	kp, err := wallet.FromBase58(cfg.Wallets.FunderKey)
	if err != nil {
		return wallet.Keypair{}, fmt.Errorf("parse funder key: %w", err)
	}
	return kp, nil
}

func lamportsToSOL(v uint64) string {
	return decimal.New(int64(v), -9).String()
}
