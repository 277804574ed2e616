// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fabianmarian8/pagewatch/cmd"
	"github.com/fabianmarian8/pagewatch/internal/observability"
)

// main is the entry point for the pagewatch CLI application.
func main() {
	// A context that ends on SIGINT/SIGTERM so in-flight observation cycles
	// and the headless browser shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cmd.Execute(ctx)

	stop()
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted by the user; not a failure.
			os.Exit(0)
		}
		os.Exit(1)
	}
}
