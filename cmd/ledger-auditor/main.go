package main

import (
	"context"
	"errors"
	"time"

	"gofinances/internal/cli"
	"gofinances/internal/log"
	"gofinances/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting ledger-auditor")

	ctx := context.Background()
	store := cli.InitStore(ctx, logger, cfg)
	amqpClient := cli.InitAMQP(ctx, logger, cfg, true)

	runCtx, done := cli.GracefulShutdown(ctx, logger, shutdownTimeout, func(context.Context) {
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	})

	auditor := worker.NewAuditor(store)

	// One pass on startup covers events missed while the auditor was down.
	if report, err := auditor.Audit(runCtx); err != nil {
		logger.Error("Startup audit failed", log.FieldError, err)
	} else {
		logger.Info("Startup audit completed",
			log.NewFields().WithBalance(report.Balance).ToSlice()...)
	}

	go auditor.Run(runCtx, cfg.AuditInterval)

	if amqpClient != nil {
		go func() {
			if err := amqpClient.ConsumeLedgerEvents(runCtx, auditor.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ledger event consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP disabled, auditing on the interval only", "interval", cfg.AuditInterval)
	}

	<-done
	logger.Info("ledger-auditor stopped")
}
