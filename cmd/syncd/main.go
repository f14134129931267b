package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/crypto"
	"github.com/mailsift/mailsift/internal/db"
	"github.com/mailsift/mailsift/internal/engine"
	"github.com/mailsift/mailsift/internal/imap"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.CloseConnection(pool)

	logger.Info().Str("database", cfg.DBName).Msg("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create encryptor")
	}

	store := db.NewStore(pool)

	fetcher := imap.NewFetcher(logger, imap.Options{
		BatchSize:       cfg.BatchSize,
		SinceDays:       cfg.SinceDays,
		UseTLS:          true,
		ConnectTimeout:  cfg.ConnectTimeout,
		GreetingTimeout: cfg.GreetingTimeout,
		SocketTimeout:   cfg.SocketTimeout,
	})

	coordinator := engine.NewCoordinator(store, fetcher, encryptor, engine.CoordinatorOptions{
		DebugBounces:            cfg.DebugBounces,
		BounceSubjectRecipients: cfg.BounceSubjectRecipients,
	}, logger)

	scheduler := engine.NewScheduler(store, coordinator, cfg.CycleInterval, cfg.WorkerPoolSize, logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Dur("cycle_interval", cfg.CycleInterval).
		Int("workers", cfg.WorkerPoolSize).
		Msg("Sync engine starting")

	scheduler.Run(ctx)

	logger.Info().Msg("Sync engine stopped")
}

// newLogger builds the process logger: human-readable console output in
// development, JSON elsewhere.
func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
