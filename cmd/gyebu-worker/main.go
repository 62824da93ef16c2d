package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gyebu/internal/amqp"
	"gyebu/internal/config"
	"gyebu/internal/export"
	applog "gyebu/internal/log"
	"gyebu/internal/services"
	"gyebu/internal/storage"
	"gyebu/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: slog.LevelInfo, Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting gyebu worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, applog.FieldPath, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Snapshot export to Google Sheets is optional.
	var exporter export.SnapshotWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := export.NewGoogleFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", applog.FieldSpreadsheetID, cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	// The worker recomputes scores itself, it never publishes refreshes.
	service := services.NewProgressService(repo, repo, nil, cfg.DefaultTimeZone)
	scoreWorker := worker.NewScoreWorker(repo, service, exporter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqp.ConsumeWithReconnect(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			func(msg *amqp.ScoreRefreshMessage) error {
				return scoreWorker.HandleRefreshMessage(ctx, msg)
			})
	})

	g.Go(func() error {
		return scoreWorker.RunSweepLoop(ctx, cfg.SweepInterval)
	})

	logger.Info("Worker running",
		"sweep_interval", cfg.SweepInterval.String(),
		"queue", cfg.AMQPQueue)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
