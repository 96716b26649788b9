// Package storage provides interfaces and implementations for persistent storage
// of the relay log and idempotency records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/spherity/ethr-did/internal/model"
)

// ErrConflict indicates the resource already exists or the operation would violate invariants.
var ErrConflict = errors.New("conflict")

// OperationLogStore captures the append-only relay history for a DID.
type OperationLogStore interface {
	// AppendOperation adds a new entry to the operation log
	AppendOperation(ctx context.Context, entry model.OperationLogEntry) error
	// ListOperations retrieves all log entries for a specific DID, oldest first
	ListOperations(ctx context.Context, did string) ([]model.OperationLogEntry, error)
}

// IdempotencyStore stores deterministic responses for a limited period.
// Enables idempotent handling of otherwise non-idempotent operations.
type IdempotencyStore interface {
	// Remember stores a response for later retrieval. A key already held
	// returns ErrConflict.
	Remember(ctx context.Context, key string, response StoredResponse) error
	// Recall retrieves a previously stored response if it exists and hasn't expired
	Recall(ctx context.Context, key string) (StoredResponse, bool)
}

// Store aggregates all persistence capabilities required by the daemon.
type Store interface {
	OperationLogStore
	IdempotencyStore
}

// StoredResponse captures the HTTP response data persisted for idempotent replays.
type StoredResponse struct {
	StatusCode int               // HTTP status code of the original response
	Body       []byte            // Response body content
	Headers    map[string]string // Response headers
	ExpiresAt  time.Time         // Expiration timestamp for this cached response
}
