package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces"
	"github.com/sheikh-saqib/fund-ledger/internal/models"
)

// Drift describes how the global copy of one owner differs from the
// embedded copy.
type Drift struct {
	OwnerID string `json:"ownerId"`
	// MissingGlobal lists embedded transactions without a global row.
	MissingGlobal []string `json:"missingGlobal"`
	// ExtraGlobal lists global rows absent from the embedded copy.
	ExtraGlobal []string `json:"extraGlobal"`
}

func (d Drift) Clean() bool {
	return len(d.MissingGlobal) == 0 && len(d.ExtraGlobal) == 0
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	IntentsReplayed int `json:"intentsReplayed"`
	IntentsFailed   int `json:"intentsFailed"`
	OrphansRemoved  int `json:"orphansRemoved"`
}

// Reconciler heals divergence left behind by partial sequential writes.
// The embedded copy is authoritative.
type Reconciler struct {
	store    interfaces.LedgerStore
	logger   *slog.Logger
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	kick     chan struct{}
}

// NewReconciler builds a reconciler that runs every interval and replays
// intents older than grace. Younger intents may still be in flight.
func NewReconciler(store interfaces.LedgerStore, logger *slog.Logger, interval, grace time.Duration) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		logger:   logger,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests a pass as soon as the grace period of intent has elapsed.
// It never blocks; it matches the OnDivergence callback signature.
func (r *Reconciler) Kick(intent models.Intent) {
	go func() {
		time.Sleep(r.grace)
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}()
}

// Run reconciles on every tick or kick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}
		report, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("reconcile pass failed", "error", err)
			continue
		}
		if report.IntentsReplayed+report.IntentsFailed+report.OrphansRemoved > 0 {
			r.logger.Info("reconcile pass completed",
				"intents_replayed", report.IntentsReplayed,
				"intents_failed", report.IntentsFailed,
				"orphans_removed", report.OrphansRemoved,
			)
		}
	}
}

// RunOnce replays pending intents and removes orphaned global rows.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	intents, err := r.store.PendingIntents(ctx, r.now().Add(-r.grace))
	if err != nil {
		return report, fmt.Errorf("list pending intents: %w", err)
	}
	for _, intent := range intents {
		if err := r.replay(ctx, intent); err != nil {
			report.IntentsFailed++
			r.logger.Warn("replay ledger intent failed", "intent_id", intent.ID, "kind", intent.Kind, "owner_id", intent.OwnerID, "error", err)
			continue
		}
		if err := r.store.ClearIntent(ctx, intent.ID); err != nil {
			report.IntentsFailed++
			continue
		}
		report.IntentsReplayed++
	}

	removed, err := r.sweepOrphans(ctx)
	report.OrphansRemoved = removed
	if err != nil {
		return report, fmt.Errorf("sweep orphans: %w", err)
	}
	return report, nil
}

func (r *Reconciler) replay(ctx context.Context, intent models.Intent) error {
	switch intent.Kind {
	case models.IntentAppend:
		owner, err := r.store.GetOwner(ctx, intent.OwnerID)
		if errors.Is(err, interfaces.ErrOwnerNotFound) {
			return r.store.DeleteFund(ctx, intent.TransactionID)
		}
		if err != nil {
			return err
		}
		for _, tx := range owner.Funds {
			if tx.ID != intent.TransactionID {
				continue
			}
			global, err := r.store.ListFundsByOwner(ctx, intent.OwnerID)
			if err != nil {
				return err
			}
			for _, row := range global {
				if row.ID == tx.ID {
					return nil
				}
			}
			return r.store.InsertFund(ctx, tx)
		}
		// The embedded write never landed.
		return r.store.DeleteFund(ctx, intent.TransactionID)

	case models.IntentWipe:
		// The embedded pull already happened; finish the global side for
		// exactly those rows so later appends survive.
		if len(intent.TransactionIDs) > 0 {
			_, err := r.store.DeleteFunds(ctx, intent.OwnerID, intent.TransactionIDs)
			return err
		}
		// The wipe stopped before recording what it pulled. Bound both copies
		// by the intent time instead.
		if _, err := r.store.PullDestination(ctx, intent.OwnerID, intent.Destination, intent.CreatedAt); err != nil && !errors.Is(err, interfaces.ErrOwnerNotFound) {
			return err
		}
		_, err := r.store.DeleteFundsByDestination(ctx, intent.OwnerID, intent.Destination, intent.CreatedAt)
		return err

	case models.IntentDeleteOwner:
		if _, err := r.store.DeleteFundsByOwner(ctx, intent.OwnerID); err != nil {
			return err
		}
		if err := r.store.DeleteOwner(ctx, intent.OwnerID); err != nil && !errors.Is(err, interfaces.ErrOwnerNotFound) {
			return err
		}
		return nil
	}
	return fmt.Errorf("unknown intent kind %q", intent.Kind)
}

// sweepOrphans deletes global rows whose owner no longer exists. Fund owners
// are listed before owners so an owner created mid-sweep is never mistaken
// for an orphan.
func (r *Reconciler) sweepOrphans(ctx context.Context) (int, error) {
	fundOwners, err := r.store.ListFundOwnerIDs(ctx)
	if err != nil {
		return 0, err
	}
	owners, err := r.store.ListOwnerIDs(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(owners))
	for _, id := range owners {
		known[id] = struct{}{}
	}

	removed := 0
	for _, id := range fundOwners {
		if _, ok := known[id]; ok {
			continue
		}
		n, err := r.store.DeleteFundsByOwner(ctx, id)
		if err != nil {
			return removed, err
		}
		r.logger.Warn("removed orphaned global funds", "owner_id", id, "rows", n)
		removed += n
	}
	return removed, nil
}

// CheckOwner compares both copies of one owner's ledger by transaction id.
func (r *Reconciler) CheckOwner(ctx context.Context, ownerID string) (Drift, error) {
	owner, err := r.store.GetOwner(ctx, ownerID)
	if errors.Is(err, interfaces.ErrOwnerNotFound) {
		return Drift{}, &NotFoundError{OwnerID: ownerID}
	}
	if err != nil {
		return Drift{}, err
	}
	global, err := r.store.ListFundsByOwner(ctx, ownerID)
	if err != nil {
		return Drift{}, err
	}

	drift := Drift{OwnerID: ownerID}
	embedded := make(map[string]struct{}, len(owner.Funds))
	for _, tx := range owner.Funds {
		embedded[tx.ID] = struct{}{}
	}
	rows := make(map[string]struct{}, len(global))
	for _, tx := range global {
		rows[tx.ID] = struct{}{}
		if _, ok := embedded[tx.ID]; !ok {
			drift.ExtraGlobal = append(drift.ExtraGlobal, tx.ID)
		}
	}
	for _, tx := range owner.Funds {
		if _, ok := rows[tx.ID]; !ok {
			drift.MissingGlobal = append(drift.MissingGlobal, tx.ID)
		}
	}
	return drift, nil
}

// HealOwner makes the global copy of ownerID match the embedded copy.
func (r *Reconciler) HealOwner(ctx context.Context, ownerID string) (Drift, error) {
	drift, err := r.CheckOwner(ctx, ownerID)
	if err != nil || drift.Clean() {
		return drift, err
	}
	owner, err := r.store.GetOwner(ctx, ownerID)
	if err != nil {
		return drift, err
	}
	missing := make(map[string]struct{}, len(drift.MissingGlobal))
	for _, id := range drift.MissingGlobal {
		missing[id] = struct{}{}
	}
	for _, tx := range owner.Funds {
		if _, ok := missing[tx.ID]; !ok {
			continue
		}
		if err := r.store.InsertFund(ctx, tx); err != nil {
			return drift, err
		}
	}
	for _, id := range drift.ExtraGlobal {
		if err := r.store.DeleteFund(ctx, id); err != nil {
			return drift, err
		}
	}
	return drift, nil
}
