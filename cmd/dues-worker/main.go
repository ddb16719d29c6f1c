package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"dues/internal/cache"
	"dues/internal/cli"
	"dues/internal/log"
	"dues/internal/worker"
)

const (
	shutdownTimeout = 30 * time.Second
	cacheSweep      = time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
	logger.Info("Starting dues-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res, svc := cli.InitBackend(context.Background(), logger, cfg)

	caches := cache.NewManager(logger)
	caches.Register(svc.Members.DuesCache())
	caches.StartCleanup(cacheSweep)

	report, err := worker.NewReportJob(svc.Members, cfg.DuesReportSchedule, logger)
	if err != nil {
		logger.Error("Invalid report schedule", "error", err)
		os.Exit(1)
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := report.Stop(stopCtx); err != nil {
			logger.Warn("Report job did not stop cleanly", "error", err)
		}
		caches.Stop()
	}
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, stop)

	if err := report.Start(ctx); err != nil {
		logger.Error("Failed to start report job", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if res.AMQP != nil {
		mirror := worker.NewMirrorWorker(res.Repos.Transactions, res.Mirror, logger)
		g.Go(func() error {
			err := res.AMQP.ConsumeLedgerEvents(gctx, mirror.HandleLedgerEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		logger.Info("Ledger mirror consuming events", "queue", cfg.AMQPQueue, "mirror_enabled", cfg.MirrorEnabled())
	} else {
		logger.Info("AMQP disabled - ledger mirror not running")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Event consumption failed", log.FieldError, err)
		stop()
		_ = res.Cleanup()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)

	if err := res.Cleanup(); err != nil {
		logger.Warn("Failed to close backend", "error", err)
	}
}
