package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheikh-saqib/fund-ledger/internal/config"
	"github.com/sheikh-saqib/fund-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/fund-ledger/internal/ledger"
	"github.com/sheikh-saqib/fund-ledger/internal/logging"
	"github.com/sheikh-saqib/fund-ledger/internal/rates"
	"github.com/sheikh-saqib/fund-ledger/internal/server"
	"github.com/sheikh-saqib/fund-ledger/internal/storage"
	"github.com/sheikh-saqib/fund-ledger/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	if cfg.Auth.JWTSecret == "" {
		logger.Error("JWT_SECRET is required to verify owner tokens")
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing traces failed", "error", err)
		}
	}()

	backend, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to open ledger store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("closing ledger store failed", "error", err)
		}
	}()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	reconciler := ledger.NewReconciler(backend.Store, logger, cfg.Reconciler.Interval, cfg.Reconciler.Grace)
	go reconciler.Run(runCtx)

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.OnDivergence(reconciler.Kick),
	}
	if cfg.Store.Sequential {
		opts = append(opts, ledger.WithSequentialWrites())
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher))
	}
	ledgerService := ledger.NewLedger(backend.Store, opts...)

	rateCache := rates.NewCache(
		rates.ChainFromConfig(cfg.Rates, &http.Client{}),
		rates.WithProviderTimeout(cfg.Rates.ProviderTimeout),
		rates.WithRefreshInterval(cfg.Rates.RefreshInterval),
		rates.WithLogger(logger),
	)

	var health server.HealthService
	if backend.DB != nil {
		health = server.DBHealthService{DB: backend.DB, Driver: cfg.Store.Driver}
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           health,
		Funds:            server.NewFundHandlers(logger, ledgerService, rateCache),
		Rates:            server.NewRateHandlers(logger, rateCache, cfg.HTTP.AllowedOrigins),
		Verifier:         server.NewTokenVerifier(cfg.Auth.JWTSecret),
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
