package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ordini/internal/amqp"
	"ordini/internal/backend"
	"ordini/internal/cache"
	"ordini/internal/catalog"
	"ordini/internal/cli"
	"ordini/internal/events"
	apphttp "ordini/internal/http"
	applog "ordini/internal/log"
	"ordini/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration",
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create catalog backend",
			applog.FieldErrorType, applog.ErrorTypeExternalSource,
			applog.FieldError, err,
			"backend", backendCfg.Type)
		os.Exit(1)
	}

	cat := catalog.New(result.Backend, catalog.Options{
		TTL:          cfg.CatalogTTL,
		FetchTimeout: cfg.PriceFetchTimeout,
	})
	cacheManager := cache.NewManager()
	cat.Register(cacheManager)
	cacheManager.StartCleanup(cfg.CatalogTTL)

	broadcaster := events.NewBroadcaster()
	publishers := events.Multi{broadcaster}

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Completions still commit locally; publishing retries on the next event.
			logger.Warn("AMQP unavailable, completion events stay in-process",
				applog.FieldErrorType, applog.ErrorTypeExternalSource,
				applog.FieldError, err)
		} else {
			publishers = append(publishers, amqpClient)
			logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange)
		}
	}

	svc := services.NewOrderService(repo, cat, publishers, logger)

	var refresher *services.CatalogRefresher
	if cfg.CatalogRefreshInterval > 0 {
		refresher = services.NewCatalogRefresher(cat, services.CatalogRefresherConfig{
			Interval: cfg.CatalogRefreshInterval,
		}, logger)
		if err := refresher.Start(context.Background()); err != nil {
			logger.Warn("Catalog refresher not started", applog.FieldError, err)
			refresher = nil
		}
	}

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is empty, mutating routes are open")
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, cat, apphttp.Options{
		AdminToken:     cfg.AdminToken,
		StatsCacheSize: cfg.StatsCacheSize,
		StatsCacheTTL:  cfg.StatsCacheTTL,
		Events:         broadcaster,
		Logger:         logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if refresher != nil {
			if err := refresher.Stop(ctx); err != nil {
				logger.Warn("Catalog refresher stop error", applog.FieldError, err)
			}
		}
		cacheManager.Stop()
		broadcaster.Close()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Backend cleanup error", applog.FieldError, err)
			}
		}
		if err := repo.Close(); err != nil {
			logger.Error("Database close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting ordini server",
		"port", cfg.Port,
		"backend", backendCfg.Type,
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
