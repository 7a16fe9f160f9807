// Package idempotency provides request-level at-most-once execution for
// mutating operations, keyed by a caller-supplied idempotency key scoped
// per tenant.
package idempotency

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/recountlabs/recount/internal/common"
	"github.com/recountlabs/recount/internal/model"
	"github.com/recountlabs/recount/internal/service"
)

// DefaultTTL is how long an idempotency record shields its key before the
// key may be reused.
const DefaultTTL = 48 * time.Hour

// Operation is a protected mutating operation. It returns the response body
// and status code to cache for replay.
type Operation func(ctx context.Context) ([]byte, int, error)

// Response is the outcome of a guarded execution. Replayed reports whether
// the cached response was returned without re-executing the operation.
type Response struct {
	Body       []byte
	StatusCode int
	Replayed   bool
}

// Guard wraps mutating operations with at-most-once semantics.
type Guard struct {
	storage      service.Storage
	now          func() time.Time
	ttl          time.Duration
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewGuard creates a guard with the given record TTL. A zero ttl uses
// DefaultTTL.
func NewGuard(storage service.Storage, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		storage:      storage,
		now:          time.Now,
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
		pollBudget:   5 * time.Second,
	}
}

// hashPayload computes the stable hash of a raw request body used for
// conflict detection.
func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum)
}

// Execute runs op under the idempotency key. A retry with the same key and
// payload replays the cached response without executing op; the same key
// with a different payload is a conflict and op never runs.
func (g *Guard) Execute(ctx context.Context, key string, tenantID int64, endpoint string, payload []byte, op Operation) (*Response, error) {
	if key == "" {
		return nil, common.NewValidationError("idempotency key cannot be empty")
	}

	hash := hashPayload(payload)
	now := g.now().UTC()

	existing, err := g.storage.GetIdempotencyRecord(ctx, key, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency record: %w", err)
	}
	if existing != nil {
		return g.resolveExisting(ctx, existing, key, tenantID, hash)
	}

	// Create the record before running the operation so a concurrent
	// duplicate request observes it.
	record := &model.IdempotencyRecord{
		Key:                key,
		TenantID:           tenantID,
		Endpoint:           endpoint,
		RequestPayloadHash: hash,
		ExpiresAt:          now.Add(g.ttl),
	}
	_, err = g.storage.CreateIdempotencyRecord(ctx, record)
	if errors.Is(err, common.ErrDuplicateEntry) {
		// Two concurrent firsts collided; this request lost. Re-read the
		// winner's record and resolve against it.
		winner, readErr := g.storage.GetIdempotencyRecord(ctx, key, tenantID, g.now().UTC())
		if readErr != nil {
			return nil, fmt.Errorf("failed to re-read idempotency record: %w", readErr)
		}
		if winner == nil {
			// The colliding row is past its TTL. Reclaim it so the key is
			// reusable without waiting for the periodic sweep.
			if _, sweepErr := g.storage.DeleteExpiredIdempotencyRecords(ctx, g.now().UTC()); sweepErr != nil {
				return nil, fmt.Errorf("failed to reclaim expired idempotency record: %w", sweepErr)
			}
			if _, retryErr := g.storage.CreateIdempotencyRecord(ctx, record); retryErr != nil {
				return nil, fmt.Errorf("failed to create idempotency record: %w", retryErr)
			}
		} else {
			return g.resolveExisting(ctx, winner, key, tenantID, hash)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to create idempotency record: %w", err)
	}

	body, statusCode, err := op(ctx)
	if err != nil {
		// Release the key so the client can retry. A failed operation has
		// no response worth replaying, and leaving the record behind would
		// block the key until its TTL lapses.
		if delErr := g.storage.DeleteIdempotencyRecord(ctx, key, tenantID); delErr != nil {
			slog.Warn("Failed to release idempotency key after operation error",
				"tenant_id", tenantID,
				"key", key,
				"error", delErr)
		}
		return nil, err
	}

	if err := g.storage.UpdateIdempotencyResponse(ctx, key, tenantID, body, statusCode); err != nil {
		return nil, fmt.Errorf("failed to cache idempotent response: %w", err)
	}

	return &Response{Body: body, StatusCode: statusCode}, nil
}

// resolveExisting handles a lookup hit: replay on a hash match, conflict on
// a mismatch. If the winner has not finished yet, wait briefly for its
// cached response.
func (g *Guard) resolveExisting(ctx context.Context, record *model.IdempotencyRecord, key string, tenantID int64, hash string) (*Response, error) {
	if record.RequestPayloadHash != hash {
		return nil, common.NewConflictError("idempotency key reused with different request payload")
	}

	if record.HasResponse() {
		slog.Debug("Replaying cached idempotent response",
			"tenant_id", tenantID,
			"key", key,
			"endpoint", record.Endpoint)
		return &Response{
			Body:       record.ResponseBody,
			StatusCode: record.ResponseStatusCode,
			Replayed:   true,
		}, nil
	}

	return g.waitForResponse(ctx, key, tenantID)
}

// waitForResponse polls for the winning request's cached response until the
// poll budget runs out.
func (g *Guard) waitForResponse(ctx context.Context, key string, tenantID int64) (*Response, error) {
	deadline := g.now().Add(g.pollBudget)

	for g.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.pollInterval):
		}

		record, err := g.storage.GetIdempotencyRecord(ctx, key, tenantID, g.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to poll idempotency record: %w", err)
		}
		if record != nil && record.HasResponse() {
			return &Response{
				Body:       record.ResponseBody,
				StatusCode: record.ResponseStatusCode,
				Replayed:   true,
			}, nil
		}
	}

	return nil, common.NewConflictError("request with this idempotency key is still in progress")
}

// SweepExpired deletes every idempotency record past its expiry. Meant to
// run periodically; expired records are already invisible to lookups.
func (g *Guard) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := g.storage.DeleteExpiredIdempotencyRecords(ctx, g.now().UTC())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		slog.Info("Swept expired idempotency records", "deleted", deleted)
	}
	return deleted, nil
}
