package main

import (
	"context"
	"os"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/cli"
	gsheet "moneta/internal/export/google"
	"moneta/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting moneta-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration validation failed", "error", err)
		os.Exit(1)
	}

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(store, sheetsClient, sheetsClient, cfg.ExportBatchSize)

	// Graceful shutdown wiring: the context cancels on SIGINT/SIGTERM
	// and the consumer loop drains before the process exits.
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// On startup, flush anything a previous run left pending.
	logger.Info("Performing startup export check...")
	if err := exportWorker.ProcessPending(ctx); err != nil {
		logger.Error("Startup export check failed", "error", err)
		// Keep going: the periodic pass retries.
	}

	go func() {
		if err := amqpClient.Consume(ctx, exportWorker.HandleMessage); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
		}
	}()

	// Periodic catch-up for messages lost while the worker was down.
	ticker := time.NewTicker(cfg.ExportCatchupPeriod)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := exportWorker.ProcessPending(ctx); err != nil {
					logger.Error("Periodic export check failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("moneta-worker running",
		"batch_size", cfg.ExportBatchSize,
		"catchup_period", cfg.ExportCatchupPeriod.String())

	cli.WaitForShutdown(ctx, done)
	logger.Info("moneta-worker stopped gracefully")
}
