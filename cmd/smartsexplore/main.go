// Command smartsexplore is the command line of SMARTSexplore.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/SMARTSexplore/internal/interfaces/cli"
)

// Set via -ldflags "-X main.version=...".
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = gitCommit
	cli.BuildDate = buildDate

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
