// Package config loads the trader configuration from YAML, a .env file
// and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/robobull/trader/internal/domain"
)

// Config is the full trader configuration.
type Config struct {
	Trading  TradingConfig  `yaml:"trading"`
	Risk     RiskConfig     `yaml:"risk"`
	Symbols  []string       `yaml:"symbols"`
	Alpaca   AlpacaConfig   `yaml:"alpaca"`
	Screener ScreenerConfig `yaml:"screener"`
	Backtest BacktestConfig `yaml:"backtest"`
	Storage  StorageConfig  `yaml:"storage"`
	Algos    AlgosConfig    `yaml:"algos"`
	Log      LogConfig      `yaml:"log"`
}

// TradingConfig controls position sizing and order pacing.
type TradingConfig struct {
	StartingCapital  float64 `yaml:"starting_capital"` // backtest only; live reads the account
	CapitalAllowance float64 `yaml:"capital_allowance"`
	RiskAllocation   float64 `yaml:"risk_allocation"`
	BuyCapFraction   float64 `yaml:"buy_cap_fraction"`
	StockCap         int     `yaml:"stock_cap"`
	CapitalRetention float64 `yaml:"capital_retention"`
	CooldownMinutes  float64 `yaml:"cooldown_minutes"`
	ResetSignals     bool    `yaml:"reset_signals"`
}

// RiskConfig controls per-position exits and session-level bounds.
type RiskConfig struct {
	StopLossROI      float64 `yaml:"stop_loss_roi"`
	TakeProfitROI    float64 `yaml:"take_profit_roi"`
	ROIToClose       float64 `yaml:"roi_to_close"`
	ROIToReset       float64 `yaml:"roi_to_reset"`
	CloseBeforeClose bool    `yaml:"close_before_close"`
	HoldUntilProfit  bool    `yaml:"hold_until_profit"`
}

// AlpacaConfig holds broker credentials and endpoints. The key and
// secret normally come from the environment, not the YAML file.
type AlpacaConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataFeed  string `yaml:"data_feed"` // iex | sip
}

// ScreenerConfig controls symbol discovery and the pre-submission
// quote screen.
type ScreenerConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url"`
	UseDefaultSymbols bool    `yaml:"use_default_symbols"`
	UseQuoteScreen    bool    `yaml:"use_quote_screen"`
	QuoteChangeMax    float64 `yaml:"quote_change_max"`
}

// BacktestConfig bounds the simulated date range.
type BacktestConfig struct {
	StartDate string `yaml:"start_date"` // YYYY-MM-DD
	EndDate   string `yaml:"end_date"`
}

// StorageConfig controls where sessions and orders are persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file
}

// AlgosConfig points at the signal algorithm definitions.
type AlgosConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path, overlays the .env file if present
// and applies environment variable overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Settings builds the immutable session settings. For backtests the
// configured date range is parsed and validated.
func (c *Config) Settings(isBacktest bool) (domain.Settings, error) {
	s := domain.Settings{
		IsBacktest:       isBacktest,
		StartingCapital:  c.Trading.StartingCapital,
		CapitalAllowance: c.Trading.CapitalAllowance,
		RiskAllocation:   c.Trading.RiskAllocation,
		BuyCapFraction:   c.Trading.BuyCapFraction,
		StockCap:         c.Trading.StockCap,
		CapitalRetention: c.Trading.CapitalRetention,
		CooldownMinutes:  c.Trading.CooldownMinutes,
		ResetSignals:     c.Trading.ResetSignals,

		StopLossROI:      c.Risk.StopLossROI,
		TakeProfitROI:    c.Risk.TakeProfitROI,
		ROIToClose:       c.Risk.ROIToClose,
		ROIToReset:       c.Risk.ROIToReset,
		CloseBeforeClose: c.Risk.CloseBeforeClose,
		HoldUntilProfit:  c.Risk.HoldUntilProfit,

		UseScreener:       c.Screener.Enabled,
		UseDefaultSymbols: c.Screener.UseDefaultSymbols,
		UseQuoteScreen:    c.Screener.UseQuoteScreen,
		QuoteChangeMax:    c.Screener.QuoteChangeMax,
	}

	if isBacktest {
		start, err := time.Parse("2006-01-02", c.Backtest.StartDate)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("config.Settings: parse start_date %q: %w", c.Backtest.StartDate, err)
		}
		end, err := time.Parse("2006-01-02", c.Backtest.EndDate)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("config.Settings: parse end_date %q: %w", c.Backtest.EndDate, err)
		}
		if end.Before(start) {
			return domain.Settings{}, fmt.Errorf("config.Settings: end_date %s before start_date %s", c.Backtest.EndDate, c.Backtest.StartDate)
		}
		s.StartDate = start
		s.EndDate = end
	}

	return s, nil
}

// applyEnvOverrides overwrites values from environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_FEED"); v != "" {
		cfg.Alpaca.DataFeed = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills required values left empty. Sizing thresholds are
// left at zero here; the decision engine normalizes those itself.
func setDefaults(cfg *Config) {
	if cfg.Trading.StartingCapital <= 0 {
		cfg.Trading.StartingCapital = domain.DefaultStartingCapital
	}
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Alpaca.DataFeed == "" {
		cfg.Alpaca.DataFeed = "iex"
	}
	if cfg.Screener.BaseURL == "" {
		cfg.Screener.BaseURL = "https://api.robobull.app"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "trader.db"
	}
	if cfg.Algos.Path == "" {
		cfg.Algos.Path = "config/algos.yaml"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
