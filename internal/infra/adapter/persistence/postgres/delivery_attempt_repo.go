package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/repository"
)

type DeliveryAttemptRepo struct{ db DBTX }

func NewDeliveryAttemptRepo(db DBTX) repository.DeliveryAttemptRepository {
	return &DeliveryAttemptRepo{db: db}
}

const attemptColumns = `message_id, event_id, channel, status, attempts, created_at, updated_at, next_retry_at, COALESCE(last_error, ''), payload`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAttempt scans one delivery_attempts row including the JSON payload
func scanAttempt(s rowScanner) (*entity.DeliveryAttempt, error) {
	var a entity.DeliveryAttempt
	var payloadJSON []byte
	if err := s.Scan(
		&a.MessageID, &a.EventID, &a.Channel, &a.Status, &a.Attempts,
		&a.CreatedAt, &a.UpdatedAt, &a.NextRetryAt, &a.LastError, &payloadJSON,
	); err != nil {
		return nil, err
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &a.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &a, nil
}

func (repo *DeliveryAttemptRepo) Get(ctx context.Context, messageID string) (*entity.DeliveryAttempt, error) {
	query := `
SELECT ` + attemptColumns + `
FROM delivery_attempts
WHERE message_id = $1
LIMIT 1`
	a, err := scanAttempt(repo.db.QueryRowContext(ctx, query, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

func (repo *DeliveryAttemptRepo) Create(ctx context.Context, a *entity.DeliveryAttempt) error {
	const query = `
INSERT INTO delivery_attempts
  (message_id, event_id, channel, status, attempts, created_at, updated_at, next_retry_at, last_error, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
ON CONFLICT (message_id) DO NOTHING`
	payloadJSON, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("Create: marshal payload: %w", err)
	}
	res, err := repo.db.ExecContext(ctx, query,
		a.MessageID, a.EventID, a.Channel, a.Status, a.Attempts,
		a.CreatedAt, a.UpdatedAt, a.NextRetryAt, a.LastError, payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Create %s: %w", a.MessageID, entity.ErrAlreadyExists)
	}
	return nil
}

func (repo *DeliveryAttemptRepo) Update(ctx context.Context, a *entity.DeliveryAttempt) error {
	const query = `
UPDATE delivery_attempts
SET status = $1, attempts = $2, updated_at = $3, next_retry_at = $4, last_error = NULLIF($5, '')
WHERE message_id = $6`
	res, err := repo.db.ExecContext(ctx, query,
		a.Status, a.Attempts, a.UpdatedAt, a.NextRetryAt, a.LastError, a.MessageID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Update %s: %w", a.MessageID, entity.ErrNotFound)
	}
	return nil
}

func (repo *DeliveryAttemptRepo) CountByStatus(ctx context.Context) (map[entity.DeliveryStatus]int, error) {
	const query = `
SELECT status, COUNT(*)
FROM delivery_attempts
GROUP BY status`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[entity.DeliveryStatus]int, len(entity.Statuses))
	for rows.Next() {
		var status entity.DeliveryStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("CountByStatus: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (repo *DeliveryAttemptRepo) ListPendingRetries(ctx context.Context) ([]*entity.DeliveryAttempt, error) {
	query := `
SELECT ` + attemptColumns + `
FROM delivery_attempts
WHERE status = 'failed' AND next_retry_at IS NOT NULL
ORDER BY next_retry_at ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListPendingRetries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	pending := make([]*entity.DeliveryAttempt, 0, 16)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPendingRetries: %w", err)
		}
		pending = append(pending, a)
	}
	return pending, rows.Err()
}

// DeleteTerminalBefore removes entries that can no longer change and were
// last updated before cutoff.
func (repo *DeliveryAttemptRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
DELETE FROM delivery_attempts
WHERE updated_at < $1
  AND (status IN ('delivered', 'bounced', 'complained')
       OR (status = 'failed' AND next_retry_at IS NULL))`
	res, err := repo.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	return n, nil
}
