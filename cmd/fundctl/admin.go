package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/sheikh-saqib/fund-ledger/internal/ledger"
)

type wipeCmd struct {
	destination string
}

func (*wipeCmd) Name() string     { return "wipe" }
func (*wipeCmd) Synopsis() string { return "remove every transaction tagged with a destination" }
func (*wipeCmd) Usage() string {
	return `fundctl -owner <id> wipe -d <destination>
`
}

func (c *wipeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.destination, "d", "", "Destination to wipe")
}

func (c *wipeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owner, ok := requireOwner()
	if !ok {
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		res, err := a.ledger.WipeDestination(ctx, owner, c.destination)
		if ledger.IsPartialWrite(err) {
			fmt.Fprintln(os.Stderr, "warning:", err)
			err = nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("wiped %q: %d embedded, %d global\n", res.Destination, res.Embedded, res.Global)
		return nil
	})
}

type deleteOwnerCmd struct {
	yes bool
}

func (*deleteOwnerCmd) Name() string     { return "delete-owner" }
func (*deleteOwnerCmd) Synopsis() string { return "delete an owner and every transaction they own" }
func (*deleteOwnerCmd) Usage() string {
	return `fundctl -owner <id> delete-owner -yes
`
}

func (c *deleteOwnerCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm the deletion")
}

func (c *deleteOwnerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owner, ok := requireOwner()
	if !ok {
		return subcommands.ExitUsageError
	}
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to delete without -yes")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		removed, err := a.ledger.DeleteOwnerLedger(ctx, owner)
		if ledger.IsPartialWrite(err) {
			fmt.Fprintln(os.Stderr, "warning:", err)
			err = nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("deleted owner %s and %d global rows\n", owner, removed)
		return nil
	})
}

type reconcileCmd struct {
	check bool
	grace time.Duration
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "replay pending intents and repair drift between the two copies" }
func (*reconcileCmd) Usage() string {
	return `fundctl reconcile [-grace <duration>]
fundctl -owner <id> reconcile [-check]

  Without -owner, runs one full pass: pending intents older than the grace
  period are replayed and orphaned global rows are removed. With -owner the
  owner's two copies are compared and, unless -check is set, the global
  copy is rebuilt from the embedded one.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.check, "check", false, "Report drift without repairing it")
	f.DurationVar(&c.grace, "grace", -1, "Override RECONCILE_GRACE for this pass")
}

func (c *reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		if c.grace >= 0 {
			a.cfg.Reconciler.Grace = c.grace
		}
		r := a.reconciler()

		if *ownerID == "" {
			report, err := r.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		}

		var (
			drift ledger.Drift
			err   error
		)
		if c.check {
			drift, err = r.CheckOwner(ctx, *ownerID)
		} else {
			drift, err = r.HealOwner(ctx, *ownerID)
		}
		if err != nil {
			return err
		}
		return printJSON(drift)
	})
}
