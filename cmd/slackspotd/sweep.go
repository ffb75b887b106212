package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slackspot-backend/internal/sweeper"
)

func newSweepCommand(logger *log.Logger, configPath *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep and exit",
		Long: `Scans every user once, checks out expired check-ins and repairs stale
spot rosters. Without --force the run is skipped when the last sweep is
more recent than the configured sweep interval. Expiry notifications are
only sent by the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, logger, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			svc := sweeper.NewService(a.cfg.Sweeper, a.store, a.engine, sweeper.WithRecorder(a.metrics))
			report, err := svc.SweepOnce(ctx, force)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if !report.Ran {
				_, err = fmt.Fprintln(out, "sweep skipped: last sweep is more recent than the sweep interval")
				return err
			}
			_, err = fmt.Fprintf(out, "swept %s users in %s: %d expired, %d checked out, %d failed, %d roster entries repaired\n",
				humanize.Comma(int64(report.Scanned)), report.Duration, report.Expired, report.CheckedOut, report.Failed, report.RosterRepairs)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore the sweep interval")
	return cmd
}
