package model

import "time"

// IdempotencyRecord stores at-most-once execution state for a mutating
// request, keyed by (idempotency key, tenant). Records past their expiry
// are logically absent and get reaped by a periodic sweep.
type IdempotencyRecord struct {
	CreatedAt          time.Time
	ExpiresAt          time.Time
	Key                string
	Endpoint           string
	RequestPayloadHash string
	ResponseBody       []byte
	ResponseStatusCode int
	ID                 int64
	TenantID           int64
}

// Expired reports whether the record has passed its TTL at the given time.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// HasResponse reports whether the protected operation has completed and
// cached its response for replay.
func (r *IdempotencyRecord) HasResponse() bool {
	return r.ResponseStatusCode != 0
}
