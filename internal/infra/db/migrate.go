package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var schema = []string{
	`
CREATE TABLE IF NOT EXISTS delivery_attempts (
    message_id    TEXT PRIMARY KEY,
    event_id      TEXT NOT NULL,
    channel       VARCHAR(16) NOT NULL,
    status        VARCHAR(16) NOT NULL,
    attempts      INTEGER NOT NULL DEFAULT 1,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    next_retry_at TIMESTAMPTZ,
    last_error    TEXT,
    payload       JSONB NOT NULL,
    CONSTRAINT chk_delivery_channel CHECK (channel IN ('push', 'sms', 'email')),
    CONSTRAINT chk_delivery_attempts CHECK (attempts >= 1)
)`,
	`
CREATE TABLE IF NOT EXISTS webhook_events (
    id                 BIGSERIAL PRIMARY KEY,
    dedup_key          TEXT NOT NULL UNIQUE,
    message_id         TEXT NOT NULL,
    provider           VARCHAR(16) NOT NULL,
    event              TEXT NOT NULL,
    status             VARCHAR(16) NOT NULL,
    reason             TEXT,
    provider_timestamp TIMESTAMPTZ NOT NULL,
    received_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	// 再送待ちの取り出し用(起動時の再登録)
	`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_retry ON delivery_attempts(next_retry_at) WHERE next_retry_at IS NOT NULL`,
	// 統計・掃除用
	`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_status_updated ON delivery_attempts(status, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_event_id ON delivery_attempts(event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_events_message_id ON webhook_events(message_id, received_at)`,
}

// MigrateUp creates the ledger schema. Every statement is idempotent.
func MigrateUp(ctx context.Context, db DBTX) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate up step %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrateDown drops the ledger schema and all delivery history.
func MigrateDown(ctx context.Context, db DBTX) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS webhook_events`,
		`DROP TABLE IF EXISTS delivery_attempts`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}
	return nil
}
