package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/fund-ledger/internal/aggregate"
	"github.com/sheikh-saqib/fund-ledger/internal/ledger"
	"github.com/sheikh-saqib/fund-ledger/internal/rates"
)

type registerCmd struct {
	name string
}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create an owner record with an empty ledger" }
func (*registerCmd) Usage() string {
	return `fundctl -owner <id> register -name <display name>
`
}

func (c *registerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Display name, used as the default withdrawal label")
}

func (c *registerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owner, ok := requireOwner()
	if !ok {
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		o, err := a.ledger.RegisterOwner(ctx, owner, c.name)
		if err != nil {
			return err
		}
		return printJSON(o)
	})
}

// fundFlags are shared by deposit and withdraw.
type fundFlags struct {
	destination string
	amount      string
	currency    string
	label       string
}

func (f *fundFlags) set(fs *flag.FlagSet) {
	fs.StringVar(&f.destination, "d", "", "Destination the funds are tagged with")
	fs.StringVar(&f.amount, "a", "", "Amount, as a decimal string")
	fs.StringVar(&f.currency, "c", "USD", "ISO currency code")
	fs.StringVar(&f.label, "label", "", "Funder label recorded with the transaction")
}

func (f *fundFlags) parse() (decimal.Decimal, error) {
	if f.amount == "" {
		return decimal.Zero, fmt.Errorf("-a is required")
	}
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", f.amount, err)
	}
	return amount, nil
}

type depositCmd struct{ fundFlags }

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "record funds received for a destination" }
func (*depositCmd) Usage() string {
	return `fundctl -owner <id> deposit -d <destination> -a <amount> [-c <currency>] [-label <funder>]
`
}
func (c *depositCmd) SetFlags(f *flag.FlagSet) { c.set(f) }

func (c *depositCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owner, ok := requireOwner()
	if !ok {
		return subcommands.ExitUsageError
	}
	amount, err := c.parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		tx, err := a.ledger.Deposit(ctx, owner, c.destination, c.label, amount, c.currency)
		if ledger.IsPartialWrite(err) {
			fmt.Fprintln(os.Stderr, "warning:", err)
			err = nil
		}
		if err != nil {
			return err
		}
		return printJSON(tx)
	})
}

type withdrawCmd struct{ fundFlags }

func (*withdrawCmd) Name() string     { return "withdraw" }
func (*withdrawCmd) Synopsis() string { return "record a withdrawal as a negative transaction" }
func (*withdrawCmd) Usage() string {
	return `fundctl -owner <id> withdraw -d <destination> -a <amount> [-c <currency>] [-label <funder>]

  The amount is stored negated. The label defaults to the owner's name.
`
}
func (c *withdrawCmd) SetFlags(f *flag.FlagSet) { c.set(f) }

func (c *withdrawCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owner, ok := requireOwner()
	if !ok {
		return subcommands.ExitUsageError
	}
	amount, err := c.parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		tx, err := a.ledger.Withdraw(ctx, owner, c.destination, amount, c.currency, c.label)
		if ledger.IsPartialWrite(err) {
			fmt.Fprintln(os.Stderr, "warning:", err)
			err = nil
		}
		if err != nil {
			return err
		}
		return printJSON(tx)
	})
}

type listCmd struct{}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "print the owner's transactions newest first" }
func (*listCmd) Usage() string {
	return `fundctl -owner <id> list
`
}
func (*listCmd) SetFlags(*flag.FlagSet) {}

func (*listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owner, ok := requireOwner()
	if !ok {
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		funds, err := a.ledger.ListByOwner(ctx, owner)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tDESTINATION\tFUNDER\tAMOUNT\tID")
		for _, tx := range aggregate.History(funds) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				tx.CreatedAt.Format("2006-01-02 15:04"), tx.Destination, tx.FunderLabel,
				rates.Format(tx.Amount, tx.Currency), tx.ID)
		}
		return w.Flush()
	})
}

type summaryCmd struct {
	sort     string
	currency string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print per-destination totals" }
func (*summaryCmd) Usage() string {
	return `fundctl -owner <id> summary [-sort amount|recency] [-c <currency>]

  Without -c each destination lists one total per currency. With -c the
  totals are converted and amount sorting compares converted values.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.sort, "sort", "amount", "Destination ordering: amount or recency")
	f.StringVar(&c.currency, "c", "", "Convert totals into this currency")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	owner, ok := requireOwner()
	if !ok {
		return subcommands.ExitUsageError
	}
	key, ok := aggregate.ParseSortKey(c.sort)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid -sort %q\n", c.sort)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		funds, err := a.ledger.ListByOwner(ctx, owner)
		if err != nil {
			return err
		}
		sum := aggregate.Summarize(funds, key)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		if c.currency == "" {
			fmt.Fprintln(w, "DESTINATION\tCOUNT\tLAST ACTIVITY\tTOTALS")
			for _, d := range sum.Destinations {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.Name, d.Count, d.LastActivity.Format("2006-01-02"), formatTotals(d.Totals))
			}
			fmt.Fprintf(w, "\t%d\t\t%s\n", sum.Count, formatTotals(sum.ByCurrency))
			return nil
		}

		target, err := ledger.NormalizeCurrency(c.currency)
		if err != nil {
			return err
		}
		cache := a.rates()
		converted := make(map[string]decimal.Decimal, len(sum.Destinations))
		approximate := false
		for _, d := range sum.Destinations {
			total, approx := cache.ConvertTotals(ctx, d.Totals, target)
			converted[d.Name] = total
			approximate = approximate || approx
		}
		if key == aggregate.SortByAmount {
			aggregate.SortDestinationsBy(sum.Destinations, func(d aggregate.Destination) decimal.Decimal { return converted[d.Name] })
		}
		grand, approx := cache.ConvertTotals(ctx, sum.ByCurrency, target)
		approximate = approximate || approx

		fmt.Fprintln(w, "DESTINATION\tCOUNT\tLAST ACTIVITY\tTOTAL")
		for _, d := range sum.Destinations {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.Name, d.Count, d.LastActivity.Format("2006-01-02"), rates.Format(converted[d.Name], target))
		}
		fmt.Fprintf(w, "\t%d\t\t%s\n", sum.Count, rates.Format(grand, target))
		if approximate {
			fmt.Fprintln(w, "\t\t\t(approximate: some rates were unavailable)")
		}
		return nil
	})
}

func formatTotals(t aggregate.Totals) string {
	codes := make([]string, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, rates.Format(t[code], code))
	}
	return strings.Join(parts, ", ")
}
