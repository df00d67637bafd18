package main

import (
	"context"
	"log/slog"

	"github.com/compose-network/xdomain-relayer/configs"
	"github.com/spf13/cobra"
)

var (
	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Inspect and drive batch submissions",
	}

	finalizeOnceCmd = &cobra.Command{
		Use:   "finalize-once",
		Short: "Advance every sent batch that has reached finality, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.Values.Tracker.Validate(); err != nil {
				return err
			}
			if err := configs.Values.Datastore.Validate(); err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				tracker, err := a.tracker(ctx)
				if err != nil {
					return err
				}
				if err := tracker.FinalizeTask(ctx); err != nil {
					return err
				}

				slog.Info("finalization pass complete")
				return nil
			})
		},
	}
)

func init() {
	batchCmd.AddCommand(finalizeOnceCmd)
}
