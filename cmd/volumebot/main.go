package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoyBoyak31/demo-volume-bot/internal/config"
	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
	"github.com/JoyBoyak31/demo-volume-bot/internal/engine"
	"github.com/JoyBoyak31/demo-volume-bot/internal/jupiter"
	"github.com/JoyBoyak31/demo-volume-bot/internal/logging"
	"github.com/JoyBoyak31/demo-volume-bot/internal/notify"
	"github.com/JoyBoyak31/demo-volume-bot/internal/observability"
	"github.com/JoyBoyak31/demo-volume-bot/internal/session"
	"github.com/JoyBoyak31/demo-volume-bot/internal/solana"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage"
	chstore "github.com/JoyBoyak31/demo-volume-bot/internal/storage/clickhouse"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage/memory"
	"github.com/JoyBoyak31/demo-volume-bot/internal/storage/migrations"
	pgstore "github.com/JoyBoyak31/demo-volume-bot/internal/storage/postgres"
	"github.com/JoyBoyak31/demo-volume-bot/internal/wallet"
)

const gracefulTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	walletCount := flag.Int("wallets", 0, "Override the configured wallet count (new sessions only)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage even when DSNs are configured")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	skipFunding := flag.Bool("skip-funding", false, "Skip the funding pass, assume wallets hold SOL")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *walletCount > 0 {
		cfg.Wallets.Count = *walletCount
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// First signal cancels and lets the session drain; a second signal or a
	// stuck drain forces the exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			logger.Error("second signal, exiting immediately")
			os.Exit(1)
		case <-time.After(gracefulTimeout):
			logger.Error("graceful shutdown timed out, exiting")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg, *useMemory, *skipFunding)
	close(done)
	cancel()

	switch {
	case err == nil || errors.Is(err, context.Canceled):
		logger.Info("shutdown complete")
	case errors.Is(err, domain.ErrHalted):
		logger.Error("session halted after repeated rate limiting; wallets were drained where possible")
		os.Exit(2)
	default:
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, useMemory, skipFunding bool) error {
	// Load or create the session. Resuming reuses the persisted wallets so
	// SOL from an interrupted run is never stranded.
	sess, found, err := session.Load(cfg.Wallets.SessionFile)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if found {
		if sess.TokenMint != cfg.Token.Mint {
			return fmt.Errorf("session %s targets mint %s but config says %s; remove %s to start fresh",
				sess.RunID, sess.TokenMint, cfg.Token.Mint, cfg.Wallets.SessionFile)
		}
		logger.Info("session resumed", "run_id", sess.RunID, "wallets", len(sess.Wallets))
	} else {
		kps := make([]wallet.Keypair, cfg.Wallets.Count)
		for i := range kps {
			kps[i] = wallet.Generate()
		}
		sess = session.New(cfg.Token.Mint, kps)
		if err := session.Save(cfg.Wallets.SessionFile, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		logger.Info("session created", "run_id", sess.RunID, "wallets", len(kps))
	}

	kps, err := sess.Keypairs()
	if err != nil {
		return fmt.Errorf("restore wallets: %w", err)
	}

	// Chain clients. The websocket confirmer is an optimization; when the
	// endpoint is down the client confirms by polling.
	clientOpts := []solana.ClientOption{solana.WithLogger(logger)}
	confirmer, err := solana.NewConfirmer(ctx, cfg.RPC.WSEndpoint, nil)
	if err != nil {
		logger.Warn("websocket confirmer unavailable, falling back to polling", "error", err)
	} else {
		confirmer.SetLogger(logger)
		defer confirmer.Close()
		clientOpts = append(clientOpts, solana.WithConfirmer(confirmer))
	}
	ledger := solana.NewClient(cfg.RPC.Endpoint, clientOpts...)

	quotes := jupiter.NewClient(
		jupiter.WithBaseURL(cfg.Jupiter.BaseURL),
		jupiter.WithTimeout(time.Duration(cfg.Jupiter.TimeoutSec)*time.Second),
		jupiter.WithLogger(logger),
	)

	// Top wallets up to the per-wallet budget before trading starts.
	if skipFunding {
		logger.Info("funding skipped by flag")
	} else if cfg.Wallets.FunderKey == "" {
		logger.Warn("no funder key configured, assuming wallets already hold SOL")
	} else {
		funderKP, err := wallet.FromBase58(cfg.Wallets.FunderKey)
		if err != nil {
			return fmt.Errorf("parse funder key: %w", err)
		}
		funder := wallet.NewFunder(wallet.FunderOptions{Ledger: ledger, Logger: logger})
		funded, err := funder.Distribute(ctx, funderKP, kps, cfg.Token.Mint, cfg.BudgetLamports())
		if err != nil {
			return fmt.Errorf("fund wallets: %w", err)
		}
		logger.Info("funding complete", "topped_up", funded, "wallets", len(kps))
	}

	// Stores (use interfaces). Memory serves dry runs and tests; DSNs switch
	// in the durable backends.
	var trades storage.TradeRecordStore = memory.NewTradeRecordStore()
	var stats storage.VolumeStatStore = memory.NewVolumeStatStore()

	if !useMemory && cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		trades = pgstore.NewTradeRecordStore(pool)
		logger.Info("trade log backed by postgres")
	}
	if !useMemory && cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		stats = chstore.NewVolumeStatStore(conn)
		logger.Info("volume stats backed by clickhouse")
	}

	sinks := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, logger))
	}

	eng, err := engine.New(engine.Options{
		Config:   cfg,
		RunID:    sess.RunID,
		Wallets:  wallet.NewManager(kps),
		Quotes:   quotes,
		Ledger:   ledger,
		Trades:   trades,
		Stats:    stats,
		Notifier: sinks,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	runErr := eng.Run(ctx)
	printSummary(trades, sess.RunID)
	return runErr
}

// printSummary writes the run totals to stdout. Residual SOL stays in the
// session wallets; `wallets -sweep` returns it to the funder.
func printSummary(trades storage.TradeRecordStore, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	all, err := trades.GetByRunID(ctx, runID)
	if err != nil {
		slog.Warn("summary query failed", "error", err)
		return
	}
	if len(all) == 0 {
		return
	}

	var buys, sells, failed, skipped int
	var buyVol, sellVol uint64
	for _, tr := range all {
		switch tr.Status {
		case domain.StatusConfirmed:
			if tr.Side == domain.SideBuy {
				buys++
				buyVol += tr.InAmount
			} else {
				sells++
				sellVol += tr.OutAmount
			}
		case domain.StatusFailed:
			failed++
		case domain.StatusSkipped:
			skipped++
		}
	}

	fmt.Printf("\nRun %s\n", runID)
	fmt.Printf("  confirmed:  %d buys (%s SOL in), %d sells (%s SOL out)\n",
		buys, lamportsToSOL(buyVol), sells, lamportsToSOL(sellVol))
	fmt.Printf("  failed:     %d\n", failed)
	fmt.Printf("  skipped:    %d\n", skipped)
}

func lamportsToSOL(v uint64) string {
	return decimal.New(int64(v), -9).String()
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
