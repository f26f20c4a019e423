package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/fleet-gateway/services/fallback"
	"github.com/upb/fleet-gateway/services/fleet"
)

func (c *CLI) newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Provision and inspect fallback snapshots",
	}
	cmd.AddCommand(c.newSnapshotCaptureCmd())
	cmd.AddCommand(c.newSnapshotListCmd())
	return cmd
}

func (c *CLI) newSnapshotCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Call the live fleet API and store the results as snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, _ := cmd.Flags().GetStringSlice("keys")

			ctx := cmd.Context()
			deps, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer deps.Close(ctx)

			captured, err := fleet.Capture(ctx, deps.FleetClient, deps.SnapshotWriter, fleet.CaptureOptions{Keys: keys}, deps.Logger)
			printSnapshots(cmd.OutOrStdout(), captured)
			return err
		},
	}
	cmd.Flags().StringSlice("keys", fleet.Keys, "Snapshot keys to capture")
	return cmd
}

func (c *CLI) newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer deps.Close(ctx)

			lister, ok := deps.Snapshots.(fallback.Lister)
			if !ok {
				return errors.New("the configured snapshot backend cannot be listed")
			}
			snapshots, err := lister.List(ctx)
			if err != nil {
				return err
			}
			printSnapshots(cmd.OutOrStdout(), snapshots)
			return nil
		},
	}
}

func printSnapshots(out io.Writer, snapshots []fallback.SnapshotInfo) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tBYTES\tCAPTURED")
	for _, s := range snapshots {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Key, s.Size, s.CapturedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
