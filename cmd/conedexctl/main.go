// Command conedexctl runs operator tasks against a ConeDex deployment:
// schema migrations, catalog seeding, shop imports and scheduled jobs.
package main

import (
	"os"

	"github.com/conedex/conedex/internal/cli"
)

func main() {
	out := cli.NewPrinter(os.Stdout)
	if err := newRootCmd(out).Execute(); err != nil {
		out.Error("%v", err)
		os.Exit(1)
	}
}
