package ledger

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces"
	"github.com/sheikh-saqib/fund-ledger/internal/models"
	"github.com/sheikh-saqib/fund-ledger/internal/models/events"
)

// WipeResult counts the transactions removed from each copy.
type WipeResult struct {
	Destination string `json:"destination"`
	Embedded    int    `json:"embedded"`
	Global      int    `json:"global"`
}

// WipeDestination physically removes every transaction of ownerID for
// destination from both copies. History is destroyed, unlike Withdraw.
// A destination with no transactions in either copy yields a *NotFoundError.
func (l *Ledger) WipeDestination(ctx context.Context, ownerID, destination string) (res WipeResult, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.WipeDestination")
	defer func() { endSpan(span, err) }()

	destination = strings.TrimSpace(destination)
	if destination == "" {
		return WipeResult{}, &ValidationError{Field: "destination", Reason: "is required"}
	}
	span.SetAttributes(attribute.String("owner.id", ownerID), attribute.String("fund.destination", destination))
	res.Destination = destination

	if l.atomic != nil {
		embedded, global, err := l.atomic.WipeDestinationAtomic(ctx, ownerID, destination)
		if err != nil {
			return WipeResult{}, l.ownerErr(err, ownerID)
		}
		res.Embedded, res.Global = embedded, global
		if res.Embedded+res.Global == 0 {
			return res, &NotFoundError{OwnerID: ownerID, Destination: destination}
		}
		l.publishWiped(ctx, ownerID, res)
		return res, nil
	}

	intent := models.Intent{
		ID:          l.newID(),
		Kind:        models.IntentWipe,
		OwnerID:     ownerID,
		Destination: destination,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.store.PutIntent(ctx, intent); err != nil {
		return WipeResult{}, err
	}

	// Only entries stamped before the intent are pulled, and only the pulled
	// ids leave the global copy. Appends racing the wipe keep both copies.
	pulled, err := l.store.PullDestination(ctx, ownerID, destination, intent.CreatedAt)
	if err != nil {
		l.clearIntent(ctx, intent)
		return WipeResult{}, l.ownerErr(err, ownerID)
	}
	res.Embedded = len(pulled)

	if len(pulled) > 0 {
		intent.TransactionIDs = pulled
		if err := l.store.PutIntent(ctx, intent); err != nil {
			l.logger.Warn("record pulled transactions on wipe intent failed",
				"intent_id", intent.ID, "owner_id", ownerID, "error", err)
		}
	}

	res.Global, err = l.store.DeleteFunds(ctx, ownerID, pulled)
	if err != nil {
		pw := &PartialWriteError{
			Op:      "wipe-destination",
			OwnerID: ownerID,
			Applied: CopyEmbedded,
			Failed:  CopyGlobal,
			Err:     err,
		}
		l.divergence(intent, pw)
		l.publishWiped(ctx, ownerID, res)
		return res, pw
	}

	l.clearIntent(ctx, intent)
	if res.Embedded+res.Global == 0 {
		return res, &NotFoundError{OwnerID: ownerID, Destination: destination}
	}
	l.publishWiped(ctx, ownerID, res)
	return res, nil
}

// DeleteOwnerLedger removes every global row of ownerID and then the owner
// record with its embedded copy. Global rows go first so a failure never
// leaves rows without an addressable owner. It returns the number of global
// rows removed.
func (l *Ledger) DeleteOwnerLedger(ctx context.Context, ownerID string) (removed int, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.DeleteOwnerLedger")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	if l.atomic != nil {
		removed, err := l.atomic.DeleteOwnerAtomic(ctx, ownerID)
		if err != nil {
			return 0, l.ownerErr(err, ownerID)
		}
		l.publishDeleted(ctx, ownerID, removed)
		return removed, nil
	}

	if _, err := l.store.GetOwner(ctx, ownerID); err != nil {
		return 0, l.ownerErr(err, ownerID)
	}

	intent := models.Intent{
		ID:        l.newID(),
		Kind:      models.IntentDeleteOwner,
		OwnerID:   ownerID,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.PutIntent(ctx, intent); err != nil {
		return 0, err
	}

	removed, err = l.store.DeleteFundsByOwner(ctx, ownerID)
	if err != nil {
		l.clearIntent(ctx, intent)
		return 0, err
	}

	if err := l.store.DeleteOwner(ctx, ownerID); err != nil && !errors.Is(err, interfaces.ErrOwnerNotFound) {
		pw := &PartialWriteError{
			Op:      "delete-owner",
			OwnerID: ownerID,
			Applied: CopyGlobal,
			Failed:  CopyEmbedded,
			Err:     err,
		}
		l.divergence(intent, pw)
		return removed, pw
	}

	l.clearIntent(ctx, intent)
	l.publishDeleted(ctx, ownerID, removed)
	return removed, nil
}

func (l *Ledger) publishWiped(ctx context.Context, ownerID string, res WipeResult) {
	l.publish(ctx, events.TopicDestinationWiped, ownerID, events.DestinationWiped{
		OwnerID:     ownerID,
		Destination: res.Destination,
		Removed:     res.Embedded,
		OccurredAt:  l.now().UTC(),
	})
}

func (l *Ledger) publishDeleted(ctx context.Context, ownerID string, removed int) {
	l.publish(ctx, events.TopicOwnerDeleted, ownerID, events.OwnerDeleted{
		OwnerID:    ownerID,
		Removed:    removed,
		OccurredAt: l.now().UTC(),
	})
}
