package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/recountlabs/recount/internal/cli"
	"github.com/recountlabs/recount/internal/engine"
)

func explainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <match-id>",
		Short: "Explain why a match was proposed",
		Long: `Show the scoring reason for a match.

The heuristic reason recorded at scoring time is always shown. When the
AI enricher is enabled, a natural-language explanation is added on top;
enrichment failures fall back to the heuristic reason.`,
		Args: cobra.ExactArgs(1),
		RunE: runExplain,
	}

	cmd.Flags().Int64P("tenant", "t", 0, "tenant ID the match belongs to (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runExplain(cmd *cobra.Command, args []string) error {
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

	explanation, err := app.engine.ExplainMatch(cmd.Context(), matchID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to explain match: %w", err)
	}

	cmd.Println(cli.TitleStyle.Render(fmt.Sprintf("Match %d", matchID)))
	cmd.Printf("Score:  %s\n", explanation.HeuristicScore.StringFixed(2))
	cmd.Printf("Reason: %s\n", explanation.HeuristicReason)
	cmd.Printf("Source: %s\n", explanation.Source)

	switch explanation.Source {
	case engine.SourceAI:
		cmd.Println()
		cmd.Println(*explanation.AIExplanation)
		if explanation.AIConfidence != nil {
			cmd.Println(cli.SubtleStyle.Render(
				fmt.Sprintf("AI confidence: %d", *explanation.AIConfidence)))
		}
	case engine.SourceFallback:
		if explanation.AIErrorMessage != nil {
			cmd.Println(cli.WarningStyle.Render(
				fmt.Sprintf("AI enrichment failed: %s", *explanation.AIErrorMessage)))
		}
	}

	return nil
}
