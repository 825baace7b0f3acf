package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces"
	"github.com/sheikh-saqib/fund-ledger/internal/models"
	"github.com/sheikh-saqib/fund-ledger/internal/models/events"
)

// DefaultWithdrawalLabel is used when a withdrawal has no funder label and
// the owner has no display name.
const DefaultWithdrawalLabel = "Withdrawal"

// Ledger records fund transactions for owners and keeps the embedded and
// global copies of every ledger coherent.
type Ledger struct {
	store interfaces.LedgerStore
	// atomic is non-nil when the backend can write both copies in one
	// storage transaction.
	atomic    interfaces.AtomicStore
	publisher interfaces.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
	diverged  func(models.Intent)
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithSequentialWrites disables the single-transaction path even when the
// store supports it.
func WithSequentialWrites() Option {
	return func(l *Ledger) { l.atomic = nil }
}

// OnDivergence registers a callback invoked after a partial write has left
// an intent pending.
func OnDivergence(fn func(models.Intent)) Option {
	return func(l *Ledger) { l.diverged = fn }
}

// NewLedger creates a Ledger on top of store.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/sheikh-saqib/fund-ledger/internal/ledger"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	if atomic, ok := store.(interfaces.AtomicStore); ok {
		l.atomic = atomic
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterOwner creates the owner record that will carry the embedded copy.
func (l *Ledger) RegisterOwner(ctx context.Context, ownerID, name string) (models.Owner, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return models.Owner{}, &ValidationError{Field: "ownerId", Reason: "is required"}
	}
	if name == "" {
		return models.Owner{}, &ValidationError{Field: "name", Reason: "is required"}
	}
	owner := models.Owner{
		ID:        ownerID,
		Name:      name,
		Funds:     []models.Transaction{},
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.CreateOwner(ctx, owner); err != nil {
		return models.Owner{}, err
	}
	return owner, nil
}

// Owner returns the owner record including the embedded copy.
func (l *Ledger) Owner(ctx context.Context, ownerID string) (models.Owner, error) {
	owner, err := l.store.GetOwner(ctx, ownerID)
	if errors.Is(err, interfaces.ErrOwnerNotFound) {
		return models.Owner{}, &NotFoundError{OwnerID: ownerID}
	}
	return owner, err
}

// SetupProfile stores the funder username and continent and marks the first
// login as complete.
func (l *Ledger) SetupProfile(ctx context.Context, ownerID, funderUsername, continent string) (models.Owner, error) {
	funderUsername = strings.TrimSpace(funderUsername)
	continent = strings.TrimSpace(continent)
	if funderUsername == "" {
		return models.Owner{}, &ValidationError{Field: "funderUsername", Reason: "is required"}
	}
	if continent == "" {
		return models.Owner{}, &ValidationError{Field: "continent", Reason: "is required"}
	}
	owner, err := l.store.UpdateProfile(ctx, ownerID, funderUsername, continent)
	if errors.Is(err, interfaces.ErrOwnerNotFound) {
		return models.Owner{}, &NotFoundError{OwnerID: ownerID}
	}
	return owner, err
}

// Deposit records a positive contribution.
func (l *Ledger) Deposit(ctx context.Context, ownerID, destination, funderLabel string, amount decimal.Decimal, currency string) (models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Transaction{}, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	return l.Append(ctx, ownerID, destination, funderLabel, amount, currency)
}

// Withdraw records a reversal as a new negative transaction. Prior
// transactions are never touched. An empty funderLabel falls back to the
// owner's name, then to DefaultWithdrawalLabel.
func (l *Ledger) Withdraw(ctx context.Context, ownerID, destination string, amount decimal.Decimal, currency, funderLabel string) (models.Transaction, error) {
	if amount.IsZero() {
		return models.Transaction{}, &ValidationError{Field: "amount", Reason: "must not be zero"}
	}
	if strings.TrimSpace(funderLabel) == "" {
		funderLabel = DefaultWithdrawalLabel
		owner, err := l.store.GetOwner(ctx, ownerID)
		switch {
		case errors.Is(err, interfaces.ErrOwnerNotFound):
			return models.Transaction{}, &NotFoundError{OwnerID: ownerID}
		case err != nil:
			return models.Transaction{}, err
		case strings.TrimSpace(owner.Name) != "":
			funderLabel = owner.Name
		}
	}
	return l.Append(ctx, ownerID, destination, funderLabel, amount.Abs().Neg(), currency)
}

// Append validates and records a signed transaction in both copies.
//
// On a partial write the returned transaction is valid (the embedded copy
// holds it) and the error is a *PartialWriteError.
func (l *Ledger) Append(ctx context.Context, ownerID, destination, funderLabel string, amount decimal.Decimal, currency string) (tx models.Transaction, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.Append")
	defer func() { endSpan(span, err) }()

	tx, err = l.newTransaction(ownerID, destination, funderLabel, amount, currency)
	if err != nil {
		return models.Transaction{}, err
	}
	span.SetAttributes(
		attribute.String("owner.id", tx.OwnerID),
		attribute.String("fund.destination", tx.Destination),
		attribute.String("fund.currency", tx.Currency),
	)

	if l.atomic != nil {
		if err := l.atomic.AppendAtomic(ctx, tx); err != nil {
			return models.Transaction{}, l.ownerErr(err, tx.OwnerID)
		}
		l.publishRecorded(ctx, tx)
		return tx, nil
	}

	intent := models.Intent{
		ID:            l.newID(),
		Kind:          models.IntentAppend,
		OwnerID:       tx.OwnerID,
		TransactionID: tx.ID,
		CreatedAt:     tx.CreatedAt,
	}
	if err := l.store.PutIntent(ctx, intent); err != nil {
		return models.Transaction{}, err
	}

	// Embedded copy first: it is the copy the owner reads back and the one
	// the reconciler heals from.
	if err := l.store.AppendFund(ctx, tx.OwnerID, tx); err != nil {
		l.clearIntent(ctx, intent)
		return models.Transaction{}, l.ownerErr(err, tx.OwnerID)
	}

	if err := l.store.InsertFund(ctx, tx); err != nil {
		pw := &PartialWriteError{
			Op:            "append",
			OwnerID:       tx.OwnerID,
			TransactionID: tx.ID,
			Applied:       CopyEmbedded,
			Failed:        CopyGlobal,
			Err:           err,
		}
		l.divergence(intent, pw)
		l.publishRecorded(ctx, tx)
		return tx, pw
	}

	if err := l.dropIfPulled(ctx, tx); err != nil {
		l.logger.Warn("remove global row of a wiped transaction failed",
			"intent_id", intent.ID, "owner_id", tx.OwnerID, "transaction_id", tx.ID, "error", err)
		if l.diverged != nil {
			l.diverged(intent)
		}
		l.publishRecorded(ctx, tx)
		return tx, nil
	}

	l.clearIntent(ctx, intent)
	l.publishRecorded(ctx, tx)
	return tx, nil
}

// dropIfPulled removes the global row of tx when a concurrent wipe pulled
// the embedded entry between the two writes. The append is then ordered
// before the wipe and neither copy keeps it.
func (l *Ledger) dropIfPulled(ctx context.Context, tx models.Transaction) error {
	owner, err := l.store.GetOwner(ctx, tx.OwnerID)
	if err != nil && !errors.Is(err, interfaces.ErrOwnerNotFound) {
		return err
	}
	for _, embedded := range owner.Funds {
		if embedded.ID == tx.ID {
			return nil
		}
	}
	return l.store.DeleteFund(ctx, tx.ID)
}

// ListByOwner returns the owner's transactions from the embedded copy in
// insertion order.
func (l *Ledger) ListByOwner(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	owner, err := l.store.GetOwner(ctx, ownerID)
	if err != nil {
		return nil, l.ownerErr(err, ownerID)
	}
	if owner.Funds == nil {
		return []models.Transaction{}, nil
	}
	return owner.Funds, nil
}

func (l *Ledger) newTransaction(ownerID, destination, funderLabel string, amount decimal.Decimal, currency string) (models.Transaction, error) {
	ownerID = strings.TrimSpace(ownerID)
	destination = strings.TrimSpace(destination)
	funderLabel = strings.TrimSpace(funderLabel)

	if ownerID == "" {
		return models.Transaction{}, &ValidationError{Field: "ownerId", Reason: "is required"}
	}
	if destination == "" {
		return models.Transaction{}, &ValidationError{Field: "destination", Reason: "is required"}
	}
	if funderLabel == "" {
		return models.Transaction{}, &ValidationError{Field: "funderName", Reason: "is required"}
	}
	if amount.IsZero() {
		return models.Transaction{}, &ValidationError{Field: "amount", Reason: "must not be zero"}
	}
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return models.Transaction{}, err
	}

	return models.Transaction{
		ID:          l.newID(),
		OwnerID:     ownerID,
		Destination: destination,
		FunderLabel: funderLabel,
		Amount:      amount,
		Currency:    code,
		CreatedAt:   l.now().UTC(),
	}, nil
}

// NormalizeCurrency trims and upper-cases a 3 or 4 letter currency code.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return "", &ValidationError{Field: "currency", Reason: "is required"}
	}
	if len(code) < 3 || len(code) > 4 {
		return "", &ValidationError{Field: "currency", Reason: "must be 3 or 4 letters"}
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", &ValidationError{Field: "currency", Reason: "must be 3 or 4 letters"}
		}
	}
	return code, nil
}

func (l *Ledger) ownerErr(err error, ownerID string) error {
	if errors.Is(err, interfaces.ErrOwnerNotFound) {
		return &NotFoundError{OwnerID: ownerID}
	}
	return err
}

func (l *Ledger) clearIntent(ctx context.Context, intent models.Intent) {
	if err := l.store.ClearIntent(ctx, intent.ID); err != nil {
		l.logger.Warn("clear ledger intent failed", "intent_id", intent.ID, "kind", intent.Kind, "error", err)
	}
}

func (l *Ledger) divergence(intent models.Intent, pw *PartialWriteError) {
	l.logger.Error("ledger copies diverged",
		"op", pw.Op,
		"owner_id", pw.OwnerID,
		"transaction_id", pw.TransactionID,
		"applied", pw.Applied,
		"failed", pw.Failed,
		"intent_id", intent.ID,
		"error", pw.Err,
	)
	if l.diverged != nil {
		l.diverged(intent)
	}
}

func (l *Ledger) publishRecorded(ctx context.Context, tx models.Transaction) {
	l.publish(ctx, events.TopicFundRecorded, tx.OwnerID, events.FundRecorded{
		TransactionID: tx.ID,
		OwnerID:       tx.OwnerID,
		Destination:   tx.Destination,
		FunderLabel:   tx.FunderLabel,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		OccurredAt:    tx.CreatedAt,
	})
}

// publish never fails the caller; the ledger is the source of truth.
func (l *Ledger) publish(ctx context.Context, topic, key string, event any) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, topic, key, event); err != nil {
		l.logger.Warn("publish ledger event failed", "topic", topic, "owner_id", key, "error", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
