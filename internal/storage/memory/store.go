package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces" // storage contracts
	"github.com/sheikh-saqib/fund-ledger/internal/models"                // domain models: Owner, Transaction, Intent
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Owners carry the embedded copy; funds is the global copy. The two are kept
// separately so a failure between them behaves like it would on a real backend.
type MemoryLedgerStore struct {
	mu      sync.Mutex               // protects every field below
	owners  map[string]*models.Owner // owner id -> owner record with embedded funds
	funds   []models.Transaction     // global copy, one row per transaction
	intents map[string]models.Intent // pending write-ahead intents by id
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		owners:  make(map[string]*models.Owner),
		funds:   make([]models.Transaction, 0),
		intents: make(map[string]models.Intent),
	}
}

func (m *MemoryLedgerStore) CreateOwner(ctx context.Context, owner models.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.owners[owner.ID]; exists {
		return interfaces.ErrOwnerExists
	}
	stored := owner
	stored.Funds = append([]models.Transaction(nil), owner.Funds...)
	m.owners[owner.ID] = &stored
	return nil
}

// GetOwner returns a copy of the owner so callers can't modify internal state.
func (m *MemoryLedgerStore) GetOwner(ctx context.Context, ownerID string) (models.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, exists := m.owners[ownerID]
	if !exists {
		return models.Owner{}, interfaces.ErrOwnerNotFound
	}
	return copyOwner(owner), nil
}

func (m *MemoryLedgerStore) UpdateProfile(ctx context.Context, ownerID, funderUsername, continent string) (models.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, exists := m.owners[ownerID]
	if !exists {
		return models.Owner{}, interfaces.ErrOwnerNotFound
	}
	owner.FunderUsername = funderUsername
	owner.Continent = continent
	owner.FirstLoginComplete = true
	return copyOwner(owner), nil
}

func (m *MemoryLedgerStore) ListOwnerIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.owners))
	for id := range m.owners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendFund pushes a transaction onto the owner's embedded list.
func (m *MemoryLedgerStore) AppendFund(ctx context.Context, ownerID string, tx models.Transaction) error {
	m.mu.Lock()         // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock() // unlock automatically when function exits (even if error occurs)

	owner, exists := m.owners[ownerID]
	if !exists {
		return interfaces.ErrOwnerNotFound
	}
	owner.Funds = append(owner.Funds, tx)
	return nil
}

// PullDestination drops the embedded entries for destination created at or
// before cutoff. Later entries belong to appends that raced the wipe.
func (m *MemoryLedgerStore) PullDestination(ctx context.Context, ownerID, destination string, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, exists := m.owners[ownerID]
	if !exists {
		return nil, interfaces.ErrOwnerNotFound
	}
	var removed []string
	kept := owner.Funds[:0:0]
	for _, tx := range owner.Funds {
		if tx.Destination == destination && !tx.CreatedAt.After(cutoff) {
			removed = append(removed, tx.ID)
			continue
		}
		kept = append(kept, tx)
	}
	owner.Funds = kept
	return removed, nil
}

func (m *MemoryLedgerStore) DeleteOwner(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.owners[ownerID]; !exists {
		return interfaces.ErrOwnerNotFound
	}
	delete(m.owners, ownerID)
	return nil
}

// InsertFund appends a row to the global copy.
func (m *MemoryLedgerStore) InsertFund(ctx context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.funds = append(m.funds, tx)
	return nil
}

func (m *MemoryLedgerStore) DeleteFund(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.funds = filterFunds(m.funds, func(tx models.Transaction) bool { return tx.ID == transactionID })
	return nil
}

func (m *MemoryLedgerStore) ListFundsByOwner(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Transaction
	for _, tx := range m.funds {
		if tx.OwnerID == ownerID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) ListFundOwnerIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, tx := range m.funds {
		if _, ok := seen[tx.OwnerID]; ok {
			continue
		}
		seen[tx.OwnerID] = struct{}{}
		ids = append(ids, tx.OwnerID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryLedgerStore) DeleteFunds(ctx context.Context, ownerID string, transactionIDs []string) (int, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	wanted := make(map[string]struct{}, len(transactionIDs))
	for _, id := range transactionIDs {
		wanted[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.funds)
	m.funds = filterFunds(m.funds, func(tx models.Transaction) bool {
		_, ok := wanted[tx.ID]
		return ok && tx.OwnerID == ownerID
	})
	return before - len(m.funds), nil
}

func (m *MemoryLedgerStore) DeleteFundsByDestination(ctx context.Context, ownerID, destination string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.funds)
	m.funds = filterFunds(m.funds, func(tx models.Transaction) bool {
		return tx.OwnerID == ownerID && tx.Destination == destination && !tx.CreatedAt.After(cutoff)
	})
	return before - len(m.funds), nil
}

func (m *MemoryLedgerStore) DeleteFundsByOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.funds)
	m.funds = filterFunds(m.funds, func(tx models.Transaction) bool { return tx.OwnerID == ownerID })
	return before - len(m.funds), nil
}

// PutIntent stores intent, replacing any earlier version with the same id.
func (m *MemoryLedgerStore) PutIntent(ctx context.Context, intent models.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent.TransactionIDs = append([]string(nil), intent.TransactionIDs...)
	m.intents[intent.ID] = intent
	return nil
}

func (m *MemoryLedgerStore) ClearIntent(ctx context.Context, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.intents, intentID)
	return nil
}

// PendingIntents returns intents created before olderThan, oldest first.
func (m *MemoryLedgerStore) PendingIntents(ctx context.Context, olderThan time.Time) ([]models.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []models.Intent
	for _, intent := range m.intents {
		if intent.CreatedAt.Before(olderThan) {
			intent.TransactionIDs = append([]string(nil), intent.TransactionIDs...)
			pending = append(pending, intent)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

// filterFunds returns a new slice without the rows matching drop.
func filterFunds(funds []models.Transaction, drop func(models.Transaction) bool) []models.Transaction {
	kept := make([]models.Transaction, 0, len(funds))
	for _, tx := range funds {
		if !drop(tx) {
			kept = append(kept, tx)
		}
	}
	return kept
}

func copyOwner(owner *models.Owner) models.Owner {
	copied := *owner
	copied.Funds = make([]models.Transaction, len(owner.Funds))
	copy(copied.Funds, owner.Funds) // copy all entries to the new slice
	return copied
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
