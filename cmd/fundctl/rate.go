package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/fund-ledger/internal/ledger"
	"github.com/sheikh-saqib/fund-ledger/internal/rates"
)

type rateCmd struct {
	amount string
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "look up an exchange rate through the provider chain" }
func (*rateCmd) Usage() string {
	return `fundctl rate [-a <amount>] <base> <target>
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.amount, "a", "", "Also convert this amount")
}

func (c *rateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "expected <base> <target>")
		return subcommands.ExitUsageError
	}
	base, err := ledger.NormalizeCurrency(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	target, err := ledger.NormalizeCurrency(f.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return withApp(ctx, func(a *app) error {
		entry := a.rates().Lookup(ctx, base, target)
		fmt.Printf("1 %s = %v %s (source: %s)\n", base, entry.Rate, target, entry.Source)
		if entry.Approximate {
			fmt.Println("no provider answered; the rate is a placeholder")
		}
		if c.amount == "" {
			return nil
		}
		amount, err := decimal.NewFromString(c.amount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", c.amount, err)
		}
		converted := amount.Mul(decimal.NewFromFloat(entry.Rate))
		fmt.Printf("%s = %s\n", rates.Format(amount, base), rates.Format(converted, target))
		return nil
	})
}
