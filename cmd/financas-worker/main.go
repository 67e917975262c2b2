package main

import (
	"context"
	"errors"
	"os"
	"time"

	"financas/internal/amqp"
	"financas/internal/cli"
	"financas/internal/sheets"
	"financas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting financas-worker",
		"queue", cfg.AMQPQueue,
		"sync_interval", cfg.SyncInterval,
		"max_attempts", cfg.MaxSubmitAttempts)

	client, err := cli.NewAPIClient(cfg)
	if err != nil {
		logger.Error("Failed to initialize API client", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	mirror, err := cli.NewMirror(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize spreadsheet mirror", "error", err, "mirror", cfg.SheetsMirror)
		os.Exit(1)
	}
	var rowWriter sheets.RowWriter
	if mirror != nil {
		rowWriter = mirror
	}

	submitter := worker.NewSubmitWorker(repo, client, rowWriter, cfg.SyncBatchSize, cfg.MaxSubmitAttempts)
	sweeper := worker.NewSweeper(submitter, cfg.SyncInterval)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled, only sweeping the outbox")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := sweeper.Stop(ctx); err != nil {
			logger.Error("Sweeper shutdown error", "error", err)
		}
	})

	logger.Info("Performing startup sync check...")
	if err := submitter.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := sweeper.Start(ctx); err != nil {
		logger.Error("Failed to start outbox sweeper", "error", err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeMessages(ctx, amqp.Handlers{
				Submit:  submitter.HandleSubmitMessage,
				Discard: submitter.HandleDiscardMessage,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
