package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/subcommands"

	"github.com/sheikh-saqib/fund-ledger/internal/config"
	"github.com/sheikh-saqib/fund-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/fund-ledger/internal/ledger"
	"github.com/sheikh-saqib/fund-ledger/internal/logging"
	"github.com/sheikh-saqib/fund-ledger/internal/rates"
	"github.com/sheikh-saqib/fund-ledger/internal/storage"
)

var ownerID = flag.String("owner", os.Getenv("FUNDCTL_OWNER"), "Owner ID to operate on")

// app is the wiring shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	backend storage.Backend
	ledger  *ledger.Ledger
	closers []func() error
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(cfg.Logging, os.Stderr)

	backend, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a := &app{cfg: cfg, logger: logger, backend: backend, closers: []func() error{backend.Close}}

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if cfg.Store.Sequential {
		opts = append(opts, ledger.WithSequentialWrites())
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, ledger.WithPublisher(publisher))
	}
	a.ledger = ledger.NewLedger(backend.Store, opts...)
	return a, nil
}

func (a *app) rates() *rates.Cache {
	return rates.NewCache(
		rates.ChainFromConfig(a.cfg.Rates, &http.Client{}),
		rates.WithProviderTimeout(a.cfg.Rates.ProviderTimeout),
		rates.WithRefreshInterval(a.cfg.Rates.RefreshInterval),
		rates.WithLogger(a.logger),
	)
}

func (a *app) reconciler() *ledger.Reconciler {
	return ledger.NewReconciler(a.backend.Store, a.logger, a.cfg.Reconciler.Interval, a.cfg.Reconciler.Grace)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// withApp opens the ledger, runs fn and maps its error to an exit status.
func withApp(ctx context.Context, fn func(*app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func requireOwner() (string, bool) {
	if *ownerID == "" {
		fmt.Fprintln(os.Stderr, "-owner is required (or set FUNDCTL_OWNER)")
		return "", false
	}
	return *ownerID, true
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
