package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// MigratePostgres applies schema migrations to the PostgreSQL database.
// Uses IF NOT EXISTS clauses to make migrations idempotent.
//
// Tables created:
// - operation_log: append-only log of relayed meta-transactions
// - idempotency_cache: caches responses for idempotent request handling
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS operation_log (
            id BIGSERIAL PRIMARY KEY,       -- Insertion order
            did TEXT NOT NULL,              -- DID the mutation applies to
            operation TEXT NOT NULL,        -- Registry mutation kind
            performed_at TEXT NOT NULL,     -- Submission timestamp (RFC3339)
            actor TEXT NOT NULL,            -- Relayer address
            correlation_id TEXT NOT NULL,   -- Request correlation identifier
            tx_hash TEXT NOT NULL,          -- Submitted transaction hash
            payload JSONB NOT NULL          -- Mutation fields as JSON
        )`,
		`CREATE INDEX IF NOT EXISTS idx_operation_log_did ON operation_log (did)`,
		`CREATE TABLE IF NOT EXISTS idempotency_cache (
            key TEXT PRIMARY KEY,           -- Idempotency key (from HTTP header)
            status_code INTEGER NOT NULL,   -- HTTP status code of cached response
            body BYTEA NOT NULL,            -- Response body as binary data
            headers JSONB NOT NULL,         -- Response headers as JSON
            expires_at TIMESTAMPTZ NOT NULL -- Expiration timestamp with timezone
        )`,
		`CREATE INDEX IF NOT EXISTS idx_idempotency_cache_expires_at ON idempotency_cache (expires_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
