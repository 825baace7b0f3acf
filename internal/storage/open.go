// Package storage selects and opens the configured ledger backend.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sheikh-saqib/fund-ledger/internal/config"
	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces"
	"github.com/sheikh-saqib/fund-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/fund-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/fund-ledger/internal/storage/sqlite"
)

// Backend is an opened ledger store. DB is nil for the memory store.
type Backend struct {
	Store interfaces.LedgerStore
	DB    *sql.DB
	close func() error
}

func (b Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open opens the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Driver {
	case "memory":
		return Backend{Store: memory.NewMemoryLedgerStore()}, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Store: store, DB: store.DB(), close: store.Close}, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.PostgresDriver, cfg.PostgresDSN)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Store: store, DB: store.DB(), close: store.Close}, nil
	}
	return Backend{}, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}
