package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/wolfman30/bitecare-clinic/cmd/mainconfig"
	appconfig "github.com/wolfman30/bitecare-clinic/internal/config"
	"github.com/wolfman30/bitecare-clinic/internal/database"
	"github.com/wolfman30/bitecare-clinic/internal/events"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Default().Warn("failed to load .env", "error", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("outbox worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("outbox worker stopped")
}

func validateConfig(cfg *appconfig.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if !cfg.UsesPostgres() {
		return errors.New("DATABASE_URL is required for the outbox worker")
	}
	if strings.TrimSpace(cfg.EventsQueueURL) == "" {
		return errors.New("EVENTS_QUEUE_URL is required for the outbox worker")
	}
	return nil
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}

	pool, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	store := events.NewOutboxStore(pool).WithClaimPolicy(cfg.OutboxClaimLease, cfg.OutboxMaxAttempts)
	delivery := events.NewSQSDelivery(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL)
	deliverer := events.NewDeliverer(store, delivery, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)

	logger.Info("outbox worker started",
		"queue_url", cfg.EventsQueueURL,
		"batch_size", cfg.OutboxBatchSize,
		"interval", cfg.OutboxPollInterval.String(),
		"max_attempts", cfg.OutboxMaxAttempts,
	)
	deliverer.Start(ctx)
	return nil
}
