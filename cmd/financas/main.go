package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"financas/internal/amqp"
	"financas/internal/cache"
	"financas/internal/cli"
	apphttp "financas/internal/http"
	applog "financas/internal/log"
	"financas/internal/services"
	"financas/internal/sheets"
	"financas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting financas server",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"api_base_url", cfg.APIBaseURL)

	client, err := cli.NewAPIClient(cfg)
	if err != nil {
		logger.Error("Failed to initialize API client", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	manager := cache.NewManager()
	manager.StartCleanup(time.Minute)
	defer manager.Stop()

	caches, closeCaches := cli.NewAnalyticsCaches(context.Background(), logger, cfg, manager)
	defer closeCaches()

	mirror, err := cli.NewMirror(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize spreadsheet mirror", "error", err, "mirror", cfg.SheetsMirror)
		os.Exit(1)
	}
	var (
		rowWriter sheets.RowWriter
		taxonomy  sheets.TaxonomyReader
	)
	if mirror != nil {
		rowWriter, taxonomy = mirror, mirror
		logger.Info("Spreadsheet mirror enabled", "mirror", cfg.SheetsMirror)
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, submitting inline", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized, series are submitted by financas-worker")
		}
	} else {
		logger.Info("AMQP disabled, series are submitted inline")
	}

	submitter := worker.NewSubmitWorker(repo, client, rowWriter, cfg.SyncBatchSize, cfg.MaxSubmitAttempts)
	analytics := services.NewAnalyticsService(client, caches)
	transactions := services.NewTransactionService(client, analytics)
	series := services.NewSeriesService(repo, publisher, submitter)
	series.OnSynced(transactions.InvalidateSeries)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Series:       series,
		Transactions: transactions,
		Analytics:    analytics,
		Taxonomy:     taxonomy,
	}, apphttp.Options{
		Logger:             applog.New(applog.Config{Component: applog.ComponentApp, Handler: logger.Handler()}),
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Checks:             map[string]apphttp.Pinger{"sqlite": repo},
	})

	// Without a queue nobody else drains the outbox.
	var sweeper *worker.Sweeper
	if publisher == nil {
		sweeper = worker.NewSweeper(submitter, cfg.SyncInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if sweeper != nil {
			if err := sweeper.Stop(ctx); err != nil {
				logger.Error("Sweeper shutdown error", "error", err)
			}
		}
	})

	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("Failed to start outbox sweeper", "error", err)
		}
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}()
	logger.Info("Server listening", "addr", srv.Addr)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
