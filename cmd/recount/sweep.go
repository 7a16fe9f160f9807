package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired idempotency records",
		Long: `Remove idempotency records past their TTL.

Expired records are invisible to lookups already; sweeping reclaims the
rows. Run this periodically from cron.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			deleted, err := app.guard.SweepExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			slog.Info("Sweep completed", "deleted", deleted)
			cmd.Printf("Deleted %d expired idempotency records\n", deleted)
			return nil
		},
	}
}
