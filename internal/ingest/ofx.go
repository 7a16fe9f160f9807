package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// ParseOFX reads an OFX/QFX bank statement export and converts its
// transactions into import items. The FITID becomes the external id so
// re-importing the same statement trips the duplicate check instead of
// double-counting.
func ParseOFX(reader io.Reader) ([]TransactionImportItem, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var items []TransactionImportItem
	statements := 0

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++

		currency := strings.ToUpper(stmt.CurDef.String())
		for _, ofxTx := range stmt.BankTranList.Transactions {
			item, err := convertOFXTransaction(ofxTx, currency)
			if err != nil {
				slog.Warn("Skipping unparsable OFX transaction",
					"fitid", string(ofxTx.FiTID),
					"error", err)
				continue
			}
			items = append(items, item)
		}
	}

	slog.Info("Parsed OFX file",
		"transactions", len(items),
		"bank_statements", statements)

	return items, nil
}

func convertOFXTransaction(ofxTx ofxgo.Transaction, currency string) (TransactionImportItem, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.String())
	if err != nil {
		return TransactionImportItem{}, fmt.Errorf("invalid amount %q: %w", ofxTx.TrnAmt.String(), err)
	}

	description := strings.TrimSpace(string(ofxTx.Name))
	if memo := strings.TrimSpace(string(ofxTx.Memo)); memo != "" {
		if description == "" {
			description = memo
		} else {
			description = description + " " + memo
		}
	}

	posted := ofxTx.DtPosted.Time.UTC()
	return TransactionImportItem{
		ExternalID:  string(ofxTx.FiTID),
		Currency:    currency,
		Description: description,
		Amount:      amount.Round(2),
		PostedAt:    BoundaryTime{value: &posted},
	}, nil
}

// preprocessOFX fixes common formatting issues in real-world OFX exports.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// Mixed-case SEVERITY values should be INFO, WARN, or ERROR. SGML
	// exports leave the tag unclosed, XML exports close it.
	severityRegex := regexp.MustCompile(`(?im)<SEVERITY>(Info|Warn|Error)(</SEVERITY>|\s*$)`)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML-style files sometimes drop the closing angle bracket on a tag
	// that ends the line.
	tagFixRegex := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}
