package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces"
	"github.com/sheikh-saqib/fund-ledger/internal/models"
	"github.com/sheikh-saqib/fund-ledger/internal/storage/sqlstore"
)

func openTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func fund(id, owner, dest, amount string, at time.Time) models.Transaction {
	return models.Transaction{
		ID:          id,
		OwnerID:     owner,
		Destination: dest,
		FunderLabel: "Bob",
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		CreatedAt:   at,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOwnerRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	if err := store.CreateOwner(ctx, models.Owner{ID: "owner-1", Name: "Alice", CreatedAt: created}); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if err := store.CreateOwner(ctx, models.Owner{ID: "owner-1", Name: "Alice"}); !errors.Is(err, interfaces.ErrOwnerExists) {
		t.Fatalf("expected ErrOwnerExists, got %v", err)
	}

	owner, err := store.GetOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get owner: %v", err)
	}
	if owner.Name != "Alice" || !owner.CreatedAt.Equal(created) || owner.Funds == nil || len(owner.Funds) != 0 {
		t.Fatalf("owner = %+v", owner)
	}

	updated, err := store.UpdateProfile(ctx, "owner-1", "alice_funds", "Europe")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if !updated.FirstLoginComplete || updated.Continent != "Europe" {
		t.Fatalf("updated = %+v", updated)
	}
	if _, err := store.UpdateProfile(ctx, "ghost", "x", "y"); !errors.Is(err, interfaces.ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
	if _, err := store.GetOwner(ctx, "ghost"); !errors.Is(err, interfaces.ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
}

func TestEmbeddedAndGlobalCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	if err := store.CreateOwner(ctx, models.Owner{ID: "owner-1", Name: "Alice", CreatedAt: now}); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	txs := []models.Transaction{
		fund("t-1", "owner-1", "Japan", "100.10", now),
		fund("t-2", "owner-1", "Japan", "-20", now.Add(time.Minute)),
		fund("t-3", "owner-1", "France", "5", now.Add(2*time.Minute)),
	}
	for _, tx := range txs {
		if err := store.AppendFund(ctx, "owner-1", tx); err != nil {
			t.Fatalf("append fund: %v", err)
		}
		if err := store.InsertFund(ctx, tx); err != nil {
			t.Fatalf("insert fund: %v", err)
		}
	}
	if err := store.AppendFund(ctx, "ghost", txs[0]); !errors.Is(err, interfaces.ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}

	owner, _ := store.GetOwner(ctx, "owner-1")
	if len(owner.Funds) != 3 || owner.Funds[1].ID != "t-2" || !owner.Funds[0].Amount.Equal(decimal.RequireFromString("100.10")) {
		t.Fatalf("embedded copy = %+v", owner.Funds)
	}
	global, err := store.ListFundsByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list funds: %v", err)
	}
	if len(global) != 3 || global[0].ID != "t-1" || !global[1].Amount.Equal(decimal.NewFromInt(-20)) {
		t.Fatalf("global copy = %+v", global)
	}

	// Entries after the cutoff stay in both copies.
	pulled, err := store.PullDestination(ctx, "owner-1", "Japan", now)
	if err != nil || len(pulled) != 1 || pulled[0] != "t-1" {
		t.Fatalf("pull destination = %v, %v, want [t-1]", pulled, err)
	}
	removed, err := store.DeleteFunds(ctx, "owner-1", pulled)
	if err != nil || removed != 1 {
		t.Fatalf("delete funds = %d, %v, want 1", removed, err)
	}
	if removed, _ := store.DeleteFunds(ctx, "owner-2", []string{"t-2"}); removed != 0 {
		t.Fatalf("deleted %d rows of another owner", removed)
	}
	removed, err = store.DeleteFundsByDestination(ctx, "owner-1", "Japan", now.Add(time.Minute))
	if err != nil || removed != 1 {
		t.Fatalf("delete by destination = %d, %v, want 1", removed, err)
	}
	if pulled, _ := store.PullDestination(ctx, "owner-1", "Japan", now.Add(time.Hour)); len(pulled) != 1 || pulled[0] != "t-2" {
		t.Fatalf("second pull = %v, want [t-2]", pulled)
	}
	owner, _ = store.GetOwner(ctx, "owner-1")
	if len(owner.Funds) != 1 || owner.Funds[0].ID != "t-3" {
		t.Fatalf("embedded after pull = %+v", owner.Funds)
	}

	ids, err := store.ListFundOwnerIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "owner-1" {
		t.Fatalf("fund owners = %v, %v", ids, err)
	}
	if err := store.DeleteFund(ctx, "t-3"); err != nil {
		t.Fatalf("delete fund: %v", err)
	}
	if global, _ := store.ListFundsByOwner(ctx, "owner-1"); len(global) != 0 {
		t.Fatalf("global after delete = %+v", global)
	}
}

func TestAtomicOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	if err := store.CreateOwner(ctx, models.Owner{ID: "owner-1", Name: "Alice", CreatedAt: now}); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if err := store.AppendAtomic(ctx, fund("t-1", "owner-1", "Japan", "10", now)); err != nil {
		t.Fatalf("append atomic: %v", err)
	}
	if err := store.AppendAtomic(ctx, fund("t-2", "owner-1", "Peru", "10", now)); err != nil {
		t.Fatalf("append atomic: %v", err)
	}

	// A missing owner rolls back the global insert too.
	if err := store.AppendAtomic(ctx, fund("t-x", "ghost", "Japan", "10", now)); !errors.Is(err, interfaces.ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
	if rows, _ := store.ListFundsByOwner(ctx, "ghost"); len(rows) != 0 {
		t.Fatalf("rolled back insert is visible: %+v", rows)
	}

	embedded, global, err := store.WipeDestinationAtomic(ctx, "owner-1", "Japan")
	if err != nil || embedded != 1 || global != 1 {
		t.Fatalf("wipe atomic = %d/%d, %v, want 1/1", embedded, global, err)
	}

	removed, err := store.DeleteOwnerAtomic(ctx, "owner-1")
	if err != nil || removed != 1 {
		t.Fatalf("delete owner atomic = %d, %v, want 1", removed, err)
	}
	if _, err := store.GetOwner(ctx, "owner-1"); !errors.Is(err, interfaces.ErrOwnerNotFound) {
		t.Fatalf("expected owner removed, got %v", err)
	}
	if ids, _ := store.ListFundOwnerIDs(ctx); len(ids) != 0 {
		t.Fatalf("global rows remain for %v", ids)
	}
	if _, err := store.DeleteOwnerAtomic(ctx, "owner-1"); !errors.Is(err, interfaces.ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
}

func TestIntents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2024, 2, 3, 4, 0, 0, 0, time.UTC)

	intents := []models.Intent{
		{ID: "i-2", Kind: models.IntentWipe, OwnerID: "owner-1", Destination: "Japan", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "i-1", Kind: models.IntentAppend, OwnerID: "owner-1", TransactionID: "t-1", CreatedAt: base.Add(time.Minute)},
		{ID: "i-3", Kind: models.IntentDeleteOwner, OwnerID: "owner-2", CreatedAt: base.Add(10 * time.Minute)},
	}
	for _, intent := range intents {
		if err := store.PutIntent(ctx, intent); err != nil {
			t.Fatalf("put intent: %v", err)
		}
	}

	pending, err := store.PendingIntents(ctx, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("pending intents: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "i-1" || pending[1].ID != "i-2" {
		t.Fatalf("pending = %+v, want [i-1 i-2]", pending)
	}
	if pending[0].Kind != models.IntentAppend || pending[0].TransactionID != "t-1" || pending[1].Destination != "Japan" {
		t.Fatalf("pending fields = %+v", pending)
	}

	// Re-putting an intent records the transactions it pulled.
	wipe := intents[0]
	wipe.TransactionIDs = []string{"t-7", "t-8"}
	if err := store.PutIntent(ctx, wipe); err != nil {
		t.Fatalf("update intent: %v", err)
	}
	pending, _ = store.PendingIntents(ctx, base.Add(5*time.Minute))
	if len(pending) != 2 || len(pending[1].TransactionIDs) != 2 || pending[1].TransactionIDs[1] != "t-8" {
		t.Fatalf("pending after update = %+v", pending)
	}
	if len(pending[0].TransactionIDs) != 0 {
		t.Fatalf("append intent carries ids: %v", pending[0].TransactionIDs)
	}

	if err := store.ClearIntent(ctx, "i-1"); err != nil {
		t.Fatalf("clear intent: %v", err)
	}
	pending, _ = store.PendingIntents(ctx, base.Add(time.Hour))
	if len(pending) != 2 {
		t.Fatalf("pending after clear = %d, want 2", len(pending))
	}
}
