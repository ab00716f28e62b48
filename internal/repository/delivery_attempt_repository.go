package repository

import (
	"context"
	"time"

	"farm-notify/internal/domain/entity"
)

// DeliveryAttemptRepository stores ledger entries keyed by message id.
// Get returns (nil, nil) when the message id is not tracked.
// Create returns entity.ErrAlreadyExists for a duplicate message id and
// Update returns entity.ErrNotFound for a missing one.
type DeliveryAttemptRepository interface {
	Get(ctx context.Context, messageID string) (*entity.DeliveryAttempt, error)
	Create(ctx context.Context, attempt *entity.DeliveryAttempt) error
	Update(ctx context.Context, attempt *entity.DeliveryAttempt) error
	CountByStatus(ctx context.Context) (map[entity.DeliveryStatus]int, error)
	ListPendingRetries(ctx context.Context) ([]*entity.DeliveryAttempt, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
