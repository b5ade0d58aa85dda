// Package cli holds the bootstrap steps shared by cmd/gofinances and
// cmd/ledger-auditor.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gofinances/internal/amqp"
	"gofinances/internal/backend"
	"gofinances/internal/config"
	"gofinances/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig exits the process when the configuration is invalid.
// It logs through a bootstrap logger since the configured one needs cfg.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// InitStore opens the configured backend or exits the process.
func InitStore(ctx context.Context, logger *log.Logger, cfg *config.Config) backend.Store {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize store", log.FieldError, err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return store
}

// InitAMQP connects to the broker when one is configured. It returns nil
// when AMQP is disabled or required is false and the broker is unreachable.
func InitAMQP(ctx context.Context, logger *log.Logger, cfg *config.Config, required bool) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.InfoContext(ctx, "AMQP disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		if required {
			logger.ErrorContext(ctx, "Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		logger.WarnContext(ctx, "AMQP unavailable, ledger events disabled", log.FieldError, err)
		return nil
	}
	logger.InfoContext(ctx, "AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// GracefulShutdown returns a context cancelled on SIGINT, SIGTERM or when
// parent is done. After cancellation cleanup runs with a deadline of
// timeout, then done closes.
func GracefulShutdown(parent context.Context, logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}
