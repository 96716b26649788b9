// Package storage contains PostgreSQL implementation of the Store interface.
// Provides persistent storage for the relay log and idempotency records.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/spherity/ethr-did/internal/model"
)

// postgres implements Store using PostgreSQL as the backend.
type postgres struct {
	db *sql.DB // Database connection pool
}

// NewPostgres creates a Store backed by PostgreSQL with connection pooling.
// Tests the database connection before returning the store.
//
// Connection pool configuration:
// - Max 25 open connections to prevent overwhelming the database
// - Max 5 idle connections to maintain a warm pool
// - 5-minute lifetime and idle time to prevent stale connections
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &postgres{db: db}, nil
}

// DB returns the underlying *sql.DB connection pool.
// Used by migrations and by the readiness probe.
func (p *postgres) DB() *sql.DB {
	return p.db
}

// AppendOperation adds a new entry to the operation log for a DID.
func (p *postgres) AppendOperation(ctx context.Context, entry model.OperationLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO operation_log (did, operation, performed_at, actor, correlation_id, tx_hash, payload) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	payloadBytes, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = p.db.ExecContext(ctx, q, entry.DID, entry.Operation, entry.PerformedAt, entry.Actor, entry.CorrelationID, entry.TxHash, payloadBytes)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// ListOperations retrieves all log entries for a DID in insertion order.
func (p *postgres) ListOperations(ctx context.Context, did string) ([]model.OperationLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT did, operation, performed_at, actor, correlation_id, tx_hash, payload FROM operation_log WHERE did = $1 ORDER BY id ASC`
	rows, err := p.db.QueryContext(ctx, q, did)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	entries := []model.OperationLogEntry{}
	for rows.Next() {
		var entry model.OperationLogEntry
		var payloadBytes []byte
		if err := rows.Scan(&entry.DID, &entry.Operation, &entry.PerformedAt, &entry.Actor, &entry.CorrelationID, &entry.TxHash, &payloadBytes); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if err := json.Unmarshal(payloadBytes, &entry.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return entries, nil
}

// Remember stores a response for idempotent replay. Expired rows under the
// same key are overwritten; a live row yields ErrConflict.
func (p *postgres) Remember(ctx context.Context, key string, response StoredResponse) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO idempotency_cache (key, status_code, body, headers, expires_at) VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (key) DO UPDATE SET status_code = EXCLUDED.status_code, body = EXCLUDED.body, headers = EXCLUDED.headers, expires_at = EXCLUDED.expires_at
        WHERE idempotency_cache.expires_at <= $6`
	headersBytes, err := json.Marshal(response.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	res, err := p.db.ExecContext(ctx, q, key, response.StatusCode, response.Body, headersBytes, response.ExpiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert cache: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConflict
	}
	return nil
}

// Recall retrieves a previously stored response if it exists and hasn't expired.
func (p *postgres) Recall(ctx context.Context, key string) (StoredResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT status_code, body, headers, expires_at FROM idempotency_cache WHERE key = $1 AND expires_at > $2`
	var response StoredResponse
	var headersBytes []byte
	err := p.db.QueryRowContext(ctx, q, key, time.Now().UTC()).Scan(&response.StatusCode, &response.Body, &headersBytes, &response.ExpiresAt)
	if err != nil {
		// sql.ErrNoRows and driver failures both read as a miss
		return StoredResponse{}, false
	}
	if err := json.Unmarshal(headersBytes, &response.Headers); err != nil {
		return StoredResponse{}, false
	}
	return response, true
}
