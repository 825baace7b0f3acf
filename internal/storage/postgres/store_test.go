package postgres

import (
	"context"
	"os"
	"testing"
)

func TestOpenRejectsBadInput(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), DriverPQ, " "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if _, err := Open(context.Background(), "mysql", "postgres://localhost/ledger"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

// TestOpenLive runs against a real server when LEDGER_TEST_POSTGRES_DSN is set.
func TestOpenLive(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}
	for _, driver := range []string{DriverPQ, DriverPGX} {
		store, err := Open(context.Background(), driver, dsn)
		if err != nil {
			t.Fatalf("open with %s: %v", driver, err)
		}
		if _, err := store.ListOwnerIDs(context.Background()); err != nil {
			t.Fatalf("list owners with %s: %v", driver, err)
		}
		_ = store.Close()
	}
}
