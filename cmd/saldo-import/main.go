// Command saldo-import loads CSV exports into the SQLite store and
// announces the change to running saldo servers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"saldo/internal/amqp"
	"saldo/internal/cli"
	"saldo/internal/config"
	"saldo/internal/ingest"
	"saldo/internal/log"
	"saldo/internal/services"
	"saldo/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	dir := flag.String("dir", cfg.DataDir, "directory holding transactions.csv, transfers.csv and anchors.csv")
	dbPath := flag.String("db", cfg.SQLiteDBPath, "SQLite database to import into")
	publish := flag.Bool("publish", cfg.AMQPURL != "", "publish a data changed message after the import")
	flag.Parse()

	logger := cli.SetupLogger(cfg, os.Stderr)
	ctx, stop := cli.SignalContext()
	defer stop()

	result, err := run(ctx, cfg, *dir, *dbPath, *publish, logger)
	if err != nil {
		cli.Fatal(logger, "Import failed", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		cli.Fatal(logger, "Failed to write result", err)
	}
}

func run(ctx context.Context, cfg *config.Config, dir, dbPath string, publish bool, logger *log.Logger) (services.ImportResult, error) {
	ds, err := ingest.LoadDir(dir)
	if err != nil {
		return services.ImportResult{}, fmt.Errorf("load %s: %w", dir, err)
	}

	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return services.ImportResult{}, fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer repo.Close()

	var publisher services.Publisher
	if publish {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, importing without notification", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	return services.NewImportService(repo, publisher).Import(ctx, ds)
}
