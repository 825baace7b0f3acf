package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/sheikh-saqib/fund-ledger/internal/models"
)

var (
	ErrOwnerNotFound = errors.New("owner not found")
	ErrOwnerExists   = errors.New("owner already exists")
)

// OwnerStore holds owner records and the embedded copy of each ledger.
// The embedded copy is read and written as a unit keyed by owner.
type OwnerStore interface {
	CreateOwner(ctx context.Context, owner models.Owner) error
	GetOwner(ctx context.Context, ownerID string) (models.Owner, error)
	UpdateProfile(ctx context.Context, ownerID, funderUsername, continent string) (models.Owner, error)
	ListOwnerIDs(ctx context.Context) ([]string, error)
	// AppendFund pushes tx onto the owner's embedded list.
	AppendFund(ctx context.Context, ownerID string, tx models.Transaction) error
	// PullDestination removes the embedded entries for destination created
	// at or before cutoff and returns their ids.
	PullDestination(ctx context.Context, ownerID, destination string, cutoff time.Time) ([]string, error)
	// DeleteOwner removes the owner record and its embedded copy.
	DeleteOwner(ctx context.Context, ownerID string) error
}

// FundStore holds the global copy: one addressable row per transaction with
// an owner back-reference.
type FundStore interface {
	InsertFund(ctx context.Context, tx models.Transaction) error
	DeleteFund(ctx context.Context, transactionID string) error
	ListFundsByOwner(ctx context.Context, ownerID string) ([]models.Transaction, error)
	ListFundOwnerIDs(ctx context.Context) ([]string, error)
	// DeleteFunds removes the listed rows of ownerID. Rows of other owners
	// are never touched.
	DeleteFunds(ctx context.Context, ownerID string, transactionIDs []string) (int, error)
	// DeleteFundsByDestination removes the rows for destination created at
	// or before cutoff.
	DeleteFundsByDestination(ctx context.Context, ownerID, destination string, cutoff time.Time) (int, error)
	DeleteFundsByOwner(ctx context.Context, ownerID string) (int, error)
}

// IntentStore persists write-ahead intents for sequential dual writes.
type IntentStore interface {
	// PutIntent stores intent. Putting an existing id again updates its
	// TransactionIDs.
	PutIntent(ctx context.Context, intent models.Intent) error
	ClearIntent(ctx context.Context, intentID string) error
	PendingIntents(ctx context.Context, olderThan time.Time) ([]models.Intent, error)
}

// LedgerStore is a backend that carries both copies of every ledger.
type LedgerStore interface {
	OwnerStore
	FundStore
	IntentStore
}

// AtomicStore is implemented by backends that can change both copies inside
// a single storage transaction. The ledger prefers it over sequential writes.
type AtomicStore interface {
	AppendAtomic(ctx context.Context, tx models.Transaction) error
	WipeDestinationAtomic(ctx context.Context, ownerID, destination string) (embedded, global int, err error)
	DeleteOwnerAtomic(ctx context.Context, ownerID string) (global int, err error)
}
