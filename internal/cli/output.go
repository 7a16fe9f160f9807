package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/model"
)

// scoreStyle picks a color band for a confidence score.
func scoreStyle(score decimal.Decimal) string {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return SuccessStyle.Render(score.StringFixed(2))
	case score.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return WarningStyle.Render(score.StringFixed(2))
	default:
		return ErrorStyle.Render(score.StringFixed(2))
	}
}

// RenderCandidates formats a ranked candidate list for the terminal.
func RenderCandidates(matches []model.Match, total int) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Match candidates"))
	b.WriteString("\n")
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-8s %-10s %-14s %-9s %s",
		"MATCH", "INVOICE", "TRANSACTION", "SCORE", "REASON")))
	b.WriteString("\n")

	for i := range matches {
		m := &matches[i]
		b.WriteString(fmt.Sprintf("%-8d %-10d %-14d %-9s %s\n",
			m.ID, m.InvoiceID, m.TransactionID,
			scoreStyle(m.Score),
			SubtleStyle.Render(m.Reason)))
	}

	b.WriteString(SubtleStyle.Render(
		fmt.Sprintf("%d shown of %d proposed matches", len(matches), total)))
	b.WriteString("\n")

	return b.String()
}

// RenderMatch formats a single match summary.
func RenderMatch(m *model.Match) string {
	status := string(m.Status)
	switch m.Status {
	case model.MatchStatusConfirmed:
		status = SuccessStyle.Render(status)
	case model.MatchStatusRejected:
		status = ErrorStyle.Render(status)
	}

	return fmt.Sprintf("match %d: invoice %d <-> transaction %d  score %s  [%s]\n  %s",
		m.ID, m.InvoiceID, m.TransactionID,
		scoreStyle(m.Score), status, SubtleStyle.Render(m.Reason))
}
