// ABOUTME: attuned CLI for reading and writing behavioral state on a gateway
// ABOUTME: Talks to attuned-gateway over HTTP using the internal client package

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/attuned-gateway/internal/config"
)

func main() {
	// .env files are optional; a broken one is worth a warning, not an exit
	if err := config.LoadEnvFiles(); err != nil {
		color.Yellow("Warning: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}
