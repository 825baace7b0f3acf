package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sheikh-saqib/fund-ledger/internal/models"
	"github.com/sheikh-saqib/fund-ledger/internal/storage/memory"
)

var errInjected = errors.New("injected failure")

// faultyStore fails selected global-copy or owner writes on demand. The
// before* hooks run once, ahead of the next matching global write, to
// interleave another operation between the two copies.
type faultyStore struct {
	*memory.MemoryLedgerStore

	mu                sync.Mutex
	failInsertFund    bool
	failDeleteFunds   bool
	failDeleteOwner   bool
	beforeInsertFund  func()
	beforeDeleteFunds func()
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
}

func (f *faultyStore) set(fn func(*faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyStore) InsertFund(ctx context.Context, tx models.Transaction) error {
	f.mu.Lock()
	fail, hook := f.failInsertFund, f.beforeInsertFund
	f.beforeInsertFund = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return errInjected
	}
	return f.MemoryLedgerStore.InsertFund(ctx, tx)
}

func (f *faultyStore) DeleteFunds(ctx context.Context, ownerID string, transactionIDs []string) (int, error) {
	f.mu.Lock()
	fail, hook := f.failDeleteFunds, f.beforeDeleteFunds
	f.beforeDeleteFunds = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return 0, errInjected
	}
	return f.MemoryLedgerStore.DeleteFunds(ctx, ownerID, transactionIDs)
}

func (f *faultyStore) DeleteFundsByDestination(ctx context.Context, ownerID, destination string, cutoff time.Time) (int, error) {
	f.mu.Lock()
	fail := f.failDeleteFunds
	f.mu.Unlock()
	if fail {
		return 0, errInjected
	}
	return f.MemoryLedgerStore.DeleteFundsByDestination(ctx, ownerID, destination, cutoff)
}

func (f *faultyStore) DeleteOwner(ctx context.Context, ownerID string) error {
	f.mu.Lock()
	fail := f.failDeleteOwner
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryLedgerStore.DeleteOwner(ctx, ownerID)
}

type published struct {
	topic string
	key   string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, event: event})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock starts in the past so every intent is older than any grace
// period measured against the wall clock.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func registerOwner(t *testing.T, l *Ledger, id, name string) {
	t.Helper()
	if _, err := l.RegisterOwner(context.Background(), id, name); err != nil {
		t.Fatalf("register owner %s: %v", id, err)
	}
}

func globalIDs(t *testing.T, store interface {
	ListFundsByOwner(context.Context, string) ([]models.Transaction, error)
}, ownerID string) []string {
	t.Helper()
	rows, err := store.ListFundsByOwner(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("list global funds: %v", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func pendingIntents(t *testing.T, store interface {
	PendingIntents(context.Context, time.Time) ([]models.Intent, error)
}) []models.Intent {
	t.Helper()
	pending, err := store.PendingIntents(context.Background(), time.Now().AddDate(100, 0, 0))
	if err != nil {
		t.Fatalf("pending intents: %v", err)
	}
	return pending
}
