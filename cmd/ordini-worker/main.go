package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ordini/internal/amqp"
	"ordini/internal/cli"
	applog "ordini/internal/log"
	"ordini/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting ordini-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker",
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	auditLog, recorded, err := worker.OpenAuditLog(cfg.AuditLogPath)
	if err != nil {
		logger.Error("Failed to open audit log", applog.FieldError, err, "path", cfg.AuditLogPath)
		os.Exit(1)
	}
	auditor := worker.NewAuditWorker(repo, auditLog, logger)
	auditor.MarkRecorded(recorded...)
	logger.Info("Audit log opened", "path", cfg.AuditLogPath, "recorded", len(recorded))

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client",
			applog.FieldErrorType, applog.ErrorTypeExternalSource,
			applog.FieldError, err)
		os.Exit(1)
	}

	consumed := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		// Let the in-flight message finish before closing its resources.
		select {
		case <-consumed:
		case <-ctx.Done():
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
		if err := auditLog.Close(); err != nil {
			logger.Warn("Audit log close error", applog.FieldError, err)
		}
		if err := repo.Close(); err != nil {
			logger.Error("Database close error", applog.FieldError, err)
		}
	})

	go func() {
		defer close(consumed)
		err := amqpClient.ConsumeOrderCompleted(ctx, auditor.HandleOrderCompleted)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
