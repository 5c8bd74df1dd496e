package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/wxbot/config"
	"github.com/alejandrodnm/wxbot/internal/adapters/notify"
	"github.com/alejandrodnm/wxbot/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one promotion pass, print the safe bets and exit")
	dryRun := flag.Bool("dry-run", false, "execute against a simulated paper balance instead of the real venue")
	report := flag.Bool("report", false, "print positions, breakers and recent executions and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
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

	slog.Info("wxbot starting",
		"config", *configPath,
		"promotion_every", cfg.PromotionInterval(),
		"locations", len(cfg.Locations),
		"dry_run", *dryRun,
		"once", *once,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole()

	// -once y -report nunca envían órdenes: venue simulado.
	paperOnly := *dryRun || *once || *report
	venue, err := buildVenue(ctx, cfg, paperOnly)
	if err != nil {
		slog.Error("failed to set up order venue", "err", err)
		os.Exit(1)
	}

	switch {
	case *report:
		runReport(ctx, store, venue, console)
	case *once:
		runOnce(ctx, cfg, store, venue, console)
	default:
		if err := runEngine(ctx, cfg, store, venue, console, paperOnly); err != nil {
			slog.Error("engine exited with error", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("wxbot stopped cleanly")
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
