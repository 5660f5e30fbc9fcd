package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"moneta/internal/cli"
	"moneta/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	file := flag.String("file", "", "CSV file to import (required)")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: moneta-import -file transactions.csv")
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	// Imports write straight to the store; the export worker picks the
	// rows up from pending state, so no AMQP publisher is needed here.
	ledger := services.NewLedgerService(store, nil)
	importer := services.NewImporter(ledger)

	f, err := os.Open(*file)
	if err != nil {
		logger.Error("Failed to open CSV file", "error", err, "file", *file)
		os.Exit(1)
	}
	defer f.Close()

	result, err := importer.ImportCSV(context.Background(), f)
	if err != nil {
		logger.Error("Import failed", "error", err, "file", *file)
		os.Exit(1)
	}

	logger.Info("Import completed",
		"file", *file,
		"imported", result.Imported,
		"failed", len(result.Errors))

	for _, rowErr := range result.Errors {
		fmt.Fprintln(os.Stderr, rowErr)
	}
	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}
