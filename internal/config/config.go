// Package config loads and validates the bot configuration. Values come
// from defaults, then the YAML file, then VOLUMEBOT_* environment
// variables for secrets.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the bot.
type Config struct {
	RPC struct {
		Endpoint   string `yaml:"endpoint"`
		WSEndpoint string `yaml:"ws_endpoint"`
	} `yaml:"rpc"`

	Jupiter struct {
		BaseURL    string `yaml:"base_url"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"jupiter"`

	Token struct {
		Mint        string `yaml:"mint"`
		SlippageBps int    `yaml:"slippage_bps"`
	} `yaml:"token"`

	Wallets struct {
		Count       int             `yaml:"count"`
		FunderKey   string          `yaml:"funder_key"`
		BudgetSOL   decimal.Decimal `yaml:"budget_sol"`
		SessionFile string          `yaml:"session_file"`
	} `yaml:"wallets"`

	Trading struct {
		MinBuySOL        decimal.Decimal `yaml:"min_buy_sol"`
		MaxBuySOL        decimal.Decimal `yaml:"max_buy_sol"`
		PhaseDelayMinSec int             `yaml:"phase_delay_min_sec"`
		PhaseDelayMaxSec int             `yaml:"phase_delay_max_sec"`
		CycleDelayMinSec int             `yaml:"cycle_delay_min_sec"`
		CycleDelayMaxSec int             `yaml:"cycle_delay_max_sec"`
	} `yaml:"trading"`

	Queue struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
	} `yaml:"queue"`

	Cache struct {
		TTLSec         int    `yaml:"ttl_sec"`
		SweepSec       int    `yaml:"sweep_sec"`
		BucketLamports uint64 `yaml:"bucket_lamports"`
	} `yaml:"cache"`

	Cooldown struct {
		FailureThreshold   int     `yaml:"failure_threshold"`
		FailureWindowSec   int     `yaml:"failure_window_sec"`
		HoldSec            int     `yaml:"hold_sec"`
		MaxHoldSec         int     `yaml:"max_hold_sec"`
		MaxConsecutive     int     `yaml:"max_consecutive"`
		RecoveryRateFactor float64 `yaml:"recovery_rate_factor"`
		RecoveryGraceSec   int     `yaml:"recovery_grace_sec"`
	} `yaml:"cooldown"`

	Storage struct {
		PostgresDSN      string `yaml:"postgres_dsn"`
		ClickhouseDSN    string `yaml:"clickhouse_dsn"`
		StatIntervalSec  int    `yaml:"stat_interval_sec"`
		FlushIntervalSec int    `yaml:"flush_interval_sec"`
	} `yaml:"storage"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration that runs against mainnet with
// conservative pacing. Only Token.Mint and Wallets.FunderKey must be set
// before a live run.
func DefaultConfig() *Config {
	var cfg Config

	cfg.RPC.Endpoint = "https://api.mainnet-beta.solana.com"
	cfg.RPC.WSEndpoint = "wss://api.mainnet-beta.solana.com"

	cfg.Jupiter.BaseURL = "https://quote-api.jup.ag/v6"
	cfg.Jupiter.TimeoutSec = 15

	cfg.Token.SlippageBps = 100

	cfg.Wallets.Count = 5
	cfg.Wallets.BudgetSOL = decimal.RequireFromString("0.05")
	cfg.Wallets.SessionFile = "session.json"

	cfg.Trading.MinBuySOL = decimal.RequireFromString("0.005")
	cfg.Trading.MaxBuySOL = decimal.RequireFromString("0.02")
	cfg.Trading.PhaseDelayMinSec = 5
	cfg.Trading.PhaseDelayMaxSec = 15
	cfg.Trading.CycleDelayMinSec = 10
	cfg.Trading.CycleDelayMaxSec = 30

	cfg.Queue.RequestsPerSecond = 4
	cfg.Queue.MaxConcurrent = 1

	cfg.Cache.TTLSec = 20
	cfg.Cache.SweepSec = 30
	cfg.Cache.BucketLamports = 1_000_000

	cfg.Cooldown.FailureThreshold = 2
	cfg.Cooldown.FailureWindowSec = 10
	cfg.Cooldown.HoldSec = 60
	cfg.Cooldown.MaxHoldSec = 600
	cfg.Cooldown.MaxConsecutive = 3
	cfg.Cooldown.RecoveryRateFactor = 0.5
	cfg.Cooldown.RecoveryGraceSec = 120

	cfg.Storage.StatIntervalSec = 60
	cfg.Storage.FlushIntervalSec = 30

	cfg.Logging.Level = "info"

	return &cfg
}

// LoadConfig reads the YAML file at path on top of the defaults, applies
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// overrideWithEnv replaces secret-bearing values from the environment so
// they can stay out of the config file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("VOLUMEBOT_FUNDER_KEY"); v != "" {
		cfg.Wallets.FunderKey = v
	}
	if v := os.Getenv("VOLUMEBOT_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("VOLUMEBOT_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("VOLUMEBOT_CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("VOLUMEBOT_RPC_ENDPOINT"); v != "" {
		cfg.RPC.Endpoint = v
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.RPC.Endpoint, "http://") && !strings.HasPrefix(c.RPC.Endpoint, "https://") {
		return fmt.Errorf("rpc endpoint must be http(s), got %q", c.RPC.Endpoint)
	}
	if c.RPC.WSEndpoint != "" &&
		!strings.HasPrefix(c.RPC.WSEndpoint, "ws://") && !strings.HasPrefix(c.RPC.WSEndpoint, "wss://") {
		return fmt.Errorf("rpc ws endpoint must be ws(s), got %q", c.RPC.WSEndpoint)
	}
	if c.Jupiter.BaseURL == "" {
		return fmt.Errorf("jupiter base URL is required")
	}

	if c.Token.Mint == "" {
		return fmt.Errorf("token mint is required")
	}
	if c.Token.SlippageBps <= 0 || c.Token.SlippageBps > 10_000 {
		return fmt.Errorf("slippage must be in (0, 10000] bps, got %d", c.Token.SlippageBps)
	}

	if c.Wallets.Count < 1 {
		return fmt.Errorf("at least one wallet is required, got %d", c.Wallets.Count)
	}
	if !c.Wallets.BudgetSOL.IsPositive() {
		return fmt.Errorf("wallet budget must be positive, got %s SOL", c.Wallets.BudgetSOL)
	}

	if !c.Trading.MinBuySOL.IsPositive() {
		return fmt.Errorf("min buy must be positive, got %s SOL", c.Trading.MinBuySOL)
	}
	if c.Trading.MaxBuySOL.LessThan(c.Trading.MinBuySOL) {
		return fmt.Errorf("max buy %s SOL is below min buy %s SOL", c.Trading.MaxBuySOL, c.Trading.MinBuySOL)
	}
	if c.Trading.MaxBuySOL.GreaterThan(c.Wallets.BudgetSOL) {
		return fmt.Errorf("max buy %s SOL exceeds wallet budget %s SOL", c.Trading.MaxBuySOL, c.Wallets.BudgetSOL)
	}
	if c.Trading.PhaseDelayMinSec < 0 || c.Trading.PhaseDelayMaxSec < c.Trading.PhaseDelayMinSec {
		return fmt.Errorf("phase delay range [%d, %d] is invalid",
			c.Trading.PhaseDelayMinSec, c.Trading.PhaseDelayMaxSec)
	}
	if c.Trading.CycleDelayMinSec < 0 || c.Trading.CycleDelayMaxSec < c.Trading.CycleDelayMinSec {
		return fmt.Errorf("cycle delay range [%d, %d] is invalid",
			c.Trading.CycleDelayMinSec, c.Trading.CycleDelayMaxSec)
	}

	if c.Queue.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive, got %g", c.Queue.RequestsPerSecond)
	}
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got %d", c.Queue.MaxConcurrent)
	}

	if c.Cooldown.RecoveryRateFactor <= 0 || c.Cooldown.RecoveryRateFactor > 1 {
		return fmt.Errorf("recovery rate factor must be in (0, 1], got %g", c.Cooldown.RecoveryRateFactor)
	}

	return nil
}

// One SOL is 10^9 lamports.
const lamportsDecimalShift = 9

func toLamports(sol decimal.Decimal) uint64 {
	return uint64(sol.Shift(lamportsDecimalShift).IntPart())
}

// MinBuyLamports returns the minimum per-trade buy size in lamports.
func (c *Config) MinBuyLamports() uint64 {
	return toLamports(c.Trading.MinBuySOL)
}

// MaxBuyLamports returns the maximum per-trade buy size in lamports.
func (c *Config) MaxBuyLamports() uint64 {
	return toLamports(c.Trading.MaxBuySOL)
}

// BudgetLamports returns the per-wallet funding target in lamports.
func (c *Config) BudgetLamports() uint64 {
	return toLamports(c.Wallets.BudgetSOL)
}
