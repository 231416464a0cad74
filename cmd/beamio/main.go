// Command beamio provisions smart accounts and manages the facet registry
// over a local ledger database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/beamio-APP/BeamioContract/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "beamio: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
