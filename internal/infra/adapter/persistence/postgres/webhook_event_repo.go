package postgres

import (
	"context"
	"fmt"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/repository"
)

type WebhookEventRepo struct{ db DBTX }

func NewWebhookEventRepo(db DBTX) repository.WebhookEventRepository {
	return &WebhookEventRepo{db: db}
}

// Append inserts the event unless its dedup key is already archived.
func (repo *WebhookEventRepo) Append(ctx context.Context, e *entity.WebhookEvent) (bool, error) {
	const query = `
INSERT INTO webhook_events
  (dedup_key, message_id, provider, event, status, reason, provider_timestamp, received_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
ON CONFLICT (dedup_key) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query,
		e.DedupKey(), e.MessageID, e.Provider, e.Event, e.Status, e.Reason,
		e.ProviderTimestamp, e.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("Append: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Append: %w", err)
	}
	return n == 1, nil
}

func (repo *WebhookEventRepo) Remove(ctx context.Context, dedupKey string) error {
	const query = `DELETE FROM webhook_events WHERE dedup_key = $1`
	if _, err := repo.db.ExecContext(ctx, query, dedupKey); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

func (repo *WebhookEventRepo) ListByMessage(ctx context.Context, messageID string) ([]*entity.WebhookEvent, error) {
	const query = `
SELECT message_id, provider, event, status, COALESCE(reason, ''), provider_timestamp, received_at
FROM webhook_events
WHERE message_id = $1
ORDER BY received_at ASC`
	rows, err := repo.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("ListByMessage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*entity.WebhookEvent
	for rows.Next() {
		var e entity.WebhookEvent
		if err := rows.Scan(
			&e.MessageID, &e.Provider, &e.Event, &e.Status, &e.Reason,
			&e.ProviderTimestamp, &e.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("ListByMessage: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
