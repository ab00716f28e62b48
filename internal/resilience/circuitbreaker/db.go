package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Querier is the part of *sql.DB the ledger repositories call.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LedgerStoreConfig trips after five straight failures and probes again
// after 30 seconds. Cancelled requests and empty results do not count.
func LedgerStoreConfig() Config {
	return Config{
		Name:             "ledger-store",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
		IsSuccessful:     storeErrorIsBenign,
	}
}

func storeErrorIsBenign(err error) bool {
	return err == nil ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// DB guards the ledger store. While the breaker is open, QueryContext and
// ExecContext fail with gobreaker.ErrOpenState without reaching the
// database, so the dispatcher fails fast instead of piling up on a dead
// pool.
type DB struct {
	cb *CircuitBreaker
	db Querier
}

// NewDB wraps db with LedgerStoreConfig.
func NewDB(db Querier) *DB {
	return NewDBWithConfig(db, LedgerStoreConfig())
}

func NewDBWithConfig(db Querier, cfg Config) *DB {
	return &DB{cb: New(cfg), db: db}
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	result, err := d.cb.Execute(func() (interface{}, error) {
		return d.db.QueryContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sql.Rows), nil
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := d.cb.Execute(func() (interface{}, error) {
		return d.db.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

// QueryRowContext bypasses the breaker: *sql.Row defers its error to Scan.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d *DB) State() gobreaker.State { return d.cb.State() }

func (d *DB) IsOpen() bool { return d.cb.IsOpen() }
