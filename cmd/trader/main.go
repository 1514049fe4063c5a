package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robobull/trader/config"
	"github.com/robobull/trader/internal/adapters/alpaca"
	"github.com/robobull/trader/internal/adapters/notify"
	"github.com/robobull/trader/internal/adapters/screener"
	"github.com/robobull/trader/internal/adapters/storage"
	"github.com/robobull/trader/internal/algo"
	"github.com/robobull/trader/internal/engine/backtest"
	"github.com/robobull/trader/internal/engine/live"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	backtestMode := flag.Bool("backtest", false, "replay the configured date range instead of trading live")
	verbose := flag.Bool("verbose", false, "set log level to debug and print signal feeds")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "render positions and results as tables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	algoCfg, err := algo.LoadConfig(cfg.Algos.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to load algos", "err", err, "path", cfg.Algos.Path)
			os.Exit(1)
		}
		slog.Warn("algos file not found, using built-in defaults", "path", cfg.Algos.Path)
		algoCfg = algo.DefaultConfig()
	}

	settings, err := cfg.Settings(*backtestMode)
	if err != nil {
		slog.Error("invalid settings", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table, *verbose)

	alpacaCfg := alpaca.Config{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
		DataFeed:  cfg.Alpaca.DataFeed,
	}

	slog.Info("trader starting",
		"config", *configPath,
		"backtest", *backtestMode,
		"symbols", len(cfg.Symbols),
		"screener", cfg.Screener.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *backtestMode {
		engine := backtest.New(settings, algoCfg, cfg.Symbols, alpaca.NewMarketData(alpacaCfg), store, notifier)
		if _, _, err := engine.Run(ctx); err != nil {
			slog.Error("backtest exited with error", "err", err)
			os.Exit(1)
		}
		slog.Info("backtest finished cleanly")
		return
	}

	deps := live.Deps{
		Broker:   alpaca.NewBroker(alpacaCfg),
		Stream:   alpaca.NewStream(alpacaCfg),
		Data:     alpaca.NewMarketData(alpacaCfg),
		Storage:  store,
		Notifier: notifier,
	}
	if cfg.Screener.Enabled || cfg.Screener.UseQuoteScreen {
		deps.Screener = screener.NewClient(cfg.Screener.BaseURL)
	}

	engine := live.New(settings, algoCfg, cfg.Symbols, deps)
	if err := engine.Run(ctx); err != nil {
		slog.Error("trader exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("trader stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
