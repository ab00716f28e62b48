package repository

import (
	"context"

	"farm-notify/internal/domain/entity"
)

// WebhookEventRepository archives consumed gateway callbacks.
// Append reports false when an event with the same dedup key was already stored.
// Remove releases a dedup key so a callback that could not be applied can be
// accepted again when the gateway resends it.
type WebhookEventRepository interface {
	Append(ctx context.Context, event *entity.WebhookEvent) (bool, error)
	Remove(ctx context.Context, dedupKey string) error
	ListByMessage(ctx context.Context, messageID string) ([]*entity.WebhookEvent, error)
}
