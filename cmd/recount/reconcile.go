package main

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/recountlabs/recount/internal/cli"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Score invoices against transactions and propose matches",
		Long: `Run the reconciliation pass for a tenant.

Every unmatched invoice is scored against every bank transaction, new
candidate pairs are persisted as proposed matches, and the top candidates
at or above the minimum score are printed. Re-running is safe: existing
pairs keep their original score.`,
		RunE: runReconcile,
	}

	cmd.Flags().Int64P("tenant", "t", 0, "tenant ID to reconcile (required)")
	cmd.Flags().Int("top", 0, "number of candidates to show (default from config)")
	cmd.Flags().Float64("min-score", -1, "minimum score for shown candidates (default from config)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	tenantID, _ := cmd.Flags().GetInt64("tenant")
	top, _ := cmd.Flags().GetInt("top")
	minScoreFlag, _ := cmd.Flags().GetFloat64("min-score")

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if top <= 0 {
		top = app.cfg.Reconcile.Top
	}
	minScore := app.cfg.Reconcile.MinScore
	if minScoreFlag >= 0 {
		minScore = decimal.NewFromFloat(minScoreFlag)
	}

	slog.Info("Running reconciliation",
		"tenant_id", tenantID,
		"top", top,
		"min_score", minScore.String())

	result, err := app.engine.Reconcile(cmd.Context(), tenantID, top, minScore)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	cmd.Println(cli.RenderCandidates(result.Candidates, result.Total))
	return nil
}
