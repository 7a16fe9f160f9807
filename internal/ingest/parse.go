// Package ingest implements bulk import of invoices and bank transactions.
package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/recountlabs/recount/internal/common"
)

// msThreshold disambiguates epoch seconds from milliseconds: values above
// it are treated as milliseconds.
const msThreshold = 1e12

// BoundaryTime accepts the timestamp formats allowed at the import
// boundary: Unix epoch seconds or milliseconds (numeric or numeric string)
// and ISO dates. Anything else is rejected.
type BoundaryTime struct {
	value *time.Time
}

// Time returns the parsed time, or nil when the field was absent.
func (b BoundaryTime) Time() *time.Time {
	return b.value
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BoundaryTime) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		b.value = nil
		return nil
	}

	var raw any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return common.NewValidationError("date fields must be Unix timestamp (seconds or milliseconds) or ISO date string")
	}

	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return common.NewValidationError("date fields must be Unix timestamp (seconds or milliseconds) or ISO date string")
		}
		b.value = fromEpoch(f)
		return nil
	case string:
		return b.parseString(v)
	default:
		return common.NewValidationError("date fields must be Unix timestamp (seconds or milliseconds) or ISO date string")
	}
}

func (b *BoundaryTime) parseString(v string) error {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		b.value = fromEpoch(f)
		return nil
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			b.value = &t
			return nil
		}
	}

	return common.NewValidationError("date fields must be Unix timestamp (seconds or milliseconds) or ISO date string")
}

func fromEpoch(f float64) *time.Time {
	if f > msThreshold {
		f /= 1000.0
	}
	t := time.Unix(int64(f), 0).UTC()
	return &t
}
