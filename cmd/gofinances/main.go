package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gofinances/internal/cache"
	"gofinances/internal/cli"
	"gofinances/internal/core"
	apphttp "gofinances/internal/http"
	"gofinances/internal/ledger"
	"gofinances/internal/log"
	"gofinances/internal/services"
)

const (
	categoryCacheTTL   = time.Hour
	cacheSweepInterval = 10 * time.Minute
	shutdownTimeout    = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx := context.Background()
	store := cli.InitStore(ctx, logger, cfg)

	// A nil *amqp.Client must not reach the service as a non-nil interface.
	var publisher services.EventPublisher
	if client := cli.InitAMQP(ctx, logger, cfg, false); client != nil {
		publisher = client
	}

	categoryCache := cache.NewLRU[core.Category](cfg.CategoryCacheSize, categoryCacheTTL)
	janitor := cache.NewJanitor()
	janitor.Register("categories", categoryCache)

	svc := services.NewTransactionService(store, publisher,
		ledger.WithFlushSize(cfg.ImportFlushSize),
		ledger.WithParallelism(cfg.CategoryParallelism),
		ledger.WithCategoryCache(categoryCache),
	)

	srv := apphttp.NewServer(svc, apphttp.Config{
		Addr:               ":" + cfg.Port,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		MaxImportRows:      cfg.MaxImportRows,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})

	runCtx, done := cli.GracefulShutdown(ctx, logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		janitor.Stop()
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close resources", log.FieldError, err)
		}
	})
	janitor.Start(runCtx, cacheSweepInterval)

	logger.Info("Starting gofinances server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", publisher != nil)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
