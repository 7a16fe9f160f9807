// Package scoring implements the deterministic match-confidence heuristic.
//
// Scoring is a fixed, auditable rule chain rather than a learned model:
// every point awarded or deducted is named in the reason string so an
// operator can retrace why a candidate ranked where it did.
package scoring

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recountlabs/recount/internal/model"
)

// Rule weights. The positive rules sum to 110 but the final score is capped
// at 100.
var (
	amountPoints        = decimal.NewFromInt(50)
	dateClosePoints     = decimal.NewFromInt(20)
	dateNearPoints      = decimal.NewFromInt(10)
	numberRefPoints     = decimal.NewFromInt(25)
	vendorRefPoints     = decimal.NewFromInt(15)
	currencyMissPenalty = decimal.NewFromInt(50)
	maxScore            = decimal.NewFromInt(100)
)

// Result is the outcome of scoring one invoice/transaction pair.
type Result struct {
	Reason string
	Score  decimal.Decimal
}

// Score computes the match confidence for an invoice/transaction pair.
// Deterministic, side-effect free, and total: it always returns a score in
// [0, 100] with a non-empty reason.
//
// The rule chain is ordered and short-circuiting. An exact
// invoice-number/external-id match overrides everything else, including a
// mismatched amount. Otherwise an exact amount match is mandatory: without
// it there is no partial credit at all.
func Score(invoice *model.Invoice, transaction *model.BankTransaction, vendorName string) Result {
	// 1. Identifier silver bullet.
	if invoice.InvoiceNumber != "" && transaction.ExternalID != "" &&
		invoice.InvoiceNumber == transaction.ExternalID {
		return Result{
			Score:  maxScore,
			Reason: "Exact identifier match (invoice_number == external_id)",
		}
	}

	// 2. Amount gate.
	if !invoice.Amount.Equal(transaction.Amount) {
		return Result{
			Score:  decimal.Zero,
			Reason: "Amount mismatch - no match possible",
		}
	}

	score := amountPoints
	reasons := []string{"Exact amount match (+50)"}

	// 3. Date proximity.
	if invoice.IssueDate != nil && !transaction.PostedAt.IsZero() {
		days := daysBetween(invoice.IssueDate, transaction)
		switch {
		case days <= 3:
			score = score.Add(dateClosePoints)
			reasons = append(reasons, "Date within 3 days (+20)")
		case days <= 7:
			score = score.Add(dateNearPoints)
			reasons = append(reasons, "Date within 7 days (+10)")
		}
	}

	// 4. Invoice number referenced in the bank memo (case-sensitive).
	if invoice.InvoiceNumber != "" && transaction.Description != "" &&
		strings.Contains(transaction.Description, invoice.InvoiceNumber) {
		score = score.Add(numberRefPoints)
		reasons = append(reasons, "Invoice number found in description (+25)")
	}

	// 5. Vendor name referenced in the bank memo (case-insensitive).
	if vendorName != "" && transaction.Description != "" &&
		strings.Contains(strings.ToLower(transaction.Description), strings.ToLower(vendorName)) {
		score = score.Add(vendorRefPoints)
		reasons = append(reasons, "Vendor name found in description (+15)")
	}

	// 6. Currency mismatch penalty, floored at zero.
	if invoice.Currency != transaction.Currency {
		score = score.Sub(currencyMissPenalty)
		if score.IsNegative() {
			score = decimal.Zero
		}
		reasons = append(reasons, "Currency mismatch (-50)")
	}

	if score.GreaterThan(maxScore) {
		score = maxScore
	}

	reason := strings.Join(reasons, " | ")
	if reason == "" {
		reason = "No matching criteria"
	}

	return Result{Score: score, Reason: reason}
}

// daysBetween returns the absolute whole-day distance between the invoice
// issue date and the transaction posting date.
func daysBetween(issueDate *time.Time, transaction *model.BankTransaction) int {
	issue := time.Date(issueDate.Year(), issueDate.Month(), issueDate.Day(), 0, 0, 0, 0, time.UTC)
	posted := transaction.PostedAt.UTC()
	posted = time.Date(posted.Year(), posted.Month(), posted.Day(), 0, 0, 0, 0, time.UTC)

	days := int(posted.Sub(issue).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
