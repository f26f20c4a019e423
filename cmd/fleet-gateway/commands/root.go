// Package commands implements the fleet-gateway command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/fleet-gateway/app"
	"github.com/upb/fleet-gateway/config"
	"github.com/upb/fleet-gateway/internal/observability"
	"go.uber.org/zap"
)

// CLI represents the fleet-gateway command line interface.
type CLI struct {
	rootCmd *cobra.Command
}

// New creates the command tree.
func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "fleet-gateway",
		Short:         "Fleet telemetry gateway with snapshot fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c := &CLI{rootCmd: rootCmd}

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newSnapshotCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// bootstrap loads configuration and wires dependencies for a command.
func bootstrap(ctx context.Context) (*app.Dependencies, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("version", cfg.Version),
		zap.String("snapshot_backend", cfg.Snapshots.Backend))

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return deps, nil
}
