package postgres

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB the repositories use.
// circuitbreaker.DB and metrics.TimedDB satisfy it as well.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
