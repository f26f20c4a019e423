// Package main is the entry point for the fleet gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/upb/fleet-gateway/cmd/fleet-gateway/commands"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := commands.New().Execute(ctx); err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}
	return 0
}
