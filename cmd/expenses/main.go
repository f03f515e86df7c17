package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/auth"
	"expenses/internal/cli"
	"expenses/internal/config"
	apphttp "expenses/internal/http"
	"expenses/internal/log"
	"expenses/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	bootLogger := cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.ConfigureLogger(cfg, log.ComponentApp)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
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

	tokens, err := auth.NewTokenService(cli.TokenConfig(cfg), store.Repository)
	if err != nil {
		return fmt.Errorf("token configuration: %w", err)
	}

	// Events are optional: without a broker the API still works.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, events disabled", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			events = amqpClient
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Users:    services.NewUserService(store.Repository, tokens, events, cfg.BcryptCost),
		Expenses: services.NewExpenseService(store.Repository, events),
		Store:    store.Repository,
		Logger:   logger,
		Cookies: apphttp.CookieConfig{
			Secure:     cfg.CookieSecure,
			SameSite:   cfg.CookieSameSite,
			AccessTTL:  cfg.AccessTokenExpiry,
			RefreshTTL: cfg.RefreshTokenExpiry,
		},
		CORSOrigin:     cfg.CORSOrigin,
		AuthRateLimit:  cfg.AuthRateLimit,
		TrustedProxies: cfg.TrustedProxies,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting expenses server", "port", cfg.Port, log.FieldBackendType, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	return serveErr
}
