// Command fundctl operates on the fund ledger directly, using the same
// configuration as the server.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&registerCmd{}, "owners")
	commander.Register(&deleteOwnerCmd{}, "owners")

	commander.Register(&depositCmd{}, "funds")
	commander.Register(&withdrawCmd{}, "funds")
	commander.Register(&listCmd{}, "funds")
	commander.Register(&summaryCmd{}, "funds")
	commander.Register(&wipeCmd{}, "funds")

	commander.Register(&rateCmd{}, "rates")
	commander.Register(&reconcileCmd{}, "maintenance")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
