package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/recountlabs/recount/internal/cli"
)

func confirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <match-id>",
		Short: "Confirm a proposed match",
		Long: `Confirm a proposed match by ID.

Confirming marks the invoice as matched to the transaction and rejects
every other proposed match for that invoice. Confirming an
already-confirmed match again is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: runConfirm,
	}

	cmd.Flags().Int64P("tenant", "t", 0, "tenant ID the match belongs to (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runConfirm(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetInt64("tenant")

	matchID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid match ID %q: %w", args[0], err)
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	match, err := app.engine.ConfirmMatch(cmd.Context(), matchID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to confirm match: %w", err)
	}

	slog.Info("Match confirmed",
		"match_id", match.ID,
		"invoice_id", match.InvoiceID,
		"transaction_id", match.TransactionID)

	cmd.Println(cli.RenderMatch(match))
	return nil
}
