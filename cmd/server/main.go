package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"batchtrack/internal/app"
	"batchtrack/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrate := flag.Bool("migrate", false, "apply database migrations before serving")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if *migrate {
		if err := a.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("starting batchtrack server",
		"addr", cfg.Server.Addr,
		"source", cfg.Source.BaseURL,
		"sync_interval", cfg.Sync.Interval,
	)

	if err := a.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
