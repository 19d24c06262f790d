package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/cache"
	"saldo/internal/cli"
	"saldo/internal/config"
	apphttp "saldo/internal/http"
	"saldo/internal/log"
	"saldo/internal/worker"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, os.Stdout)

	ctx, stop := cli.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Fatal(logger, "saldo stopped with an error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	be, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	reports := cli.NewReportService(be.Source, cfg, logger)

	caches := cache.NewManager()
	for _, c := range reports.Caches() {
		caches.Register(c)
	}
	caches.StartCleanup(ctx, cacheCleanupInterval)
	defer caches.Stop()

	recompute := worker.NewRecomputeWorker(reports)

	var pinger apphttp.Pinger
	if be.Pinger != nil {
		pinger = be.Pinger
	}
	srv := apphttp.NewServer(":"+cfg.Port, reports, apphttp.Options{Pinger: pinger, Logger: logger})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting saldo server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		recompute.StartupWarm(gctx)
		recompute.RunPeriodicRefresh(gctx, cfg.ReportRefreshInterval)
		return nil
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("connect AMQP: %w", err)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumeDataChanged(gctx, recompute.HandleDataChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, reports refresh on TTL and interval only")
	}

	return g.Wait()
}
