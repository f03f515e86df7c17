package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/log"
	"expenses/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	bootLogger := cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.ConfigureLogger(cfg, log.ComponentWorker)
	logger.Info("Starting expenses-worker", "schedule", cfg.MaintenanceSchedule)

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := cli.GracefulShutdown(logger.Logger)
	defer cancel()

	store := cli.OpenRepository(ctx, logger.Logger, cfg)
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	mw := worker.NewMaintenanceWorker(store.Repository, logger)

	// Catch up on whatever was missed while the worker was down.
	if err := mw.StartupCheck(ctx); err != nil {
		logger.Error("Startup maintenance failed", log.FieldError, err)
	}

	scheduler := worker.NewScheduler(logger)
	if _, err := scheduler.Add(cfg.MaintenanceSchedule, "purge_refresh_tokens", mw.PurgeExpiredRefreshTokens); err != nil {
		return err
	}
	if _, err := scheduler.Add(cfg.MaintenanceSchedule, "purge_orphan_expenses", mw.PurgeOrphanExpenses); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			err := amqpClient.Consume(ctx, mw.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP_URL not set, event consumption disabled")
	}

	return g.Wait()
}
