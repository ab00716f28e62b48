package metrics

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Querier is the part of *sql.DB the ledger repositories call.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TimedDB records db_query_duration_seconds for every call, labelled by
// SQL verb.
type TimedDB struct {
	db Querier
}

func NewTimedDB(db Querier) *TimedDB {
	return &TimedDB{db: db}
}

func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	RecordDBQuery(operation(query), time.Since(start), err)
	return rows, err
}

func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.db.ExecContext(ctx, query, args...)
	RecordDBQuery(operation(query), time.Since(start), err)
	return res, err
}

// QueryRowContext times only the round trip; scan errors surface later.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	RecordDBQuery(operation(query), time.Since(start), nil)
	return row
}

func operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
