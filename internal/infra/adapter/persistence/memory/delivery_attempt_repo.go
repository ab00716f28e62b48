// Package memory provides in-process implementations of the repository
// interfaces. They are the default ledger backend and back most use case tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/repository"
)

type DeliveryAttemptRepo struct {
	mu       sync.RWMutex
	attempts map[string]*entity.DeliveryAttempt
}

func NewDeliveryAttemptRepo() *DeliveryAttemptRepo {
	return &DeliveryAttemptRepo{attempts: make(map[string]*entity.DeliveryAttempt)}
}

var _ repository.DeliveryAttemptRepository = (*DeliveryAttemptRepo)(nil)

func (r *DeliveryAttemptRepo) Get(_ context.Context, messageID string) (*entity.DeliveryAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attempts[messageID].Clone(), nil
}

func (r *DeliveryAttemptRepo) Create(_ context.Context, a *entity.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[a.MessageID]; ok {
		return fmt.Errorf("Create %s: %w", a.MessageID, entity.ErrAlreadyExists)
	}
	r.attempts[a.MessageID] = a.Clone()
	return nil
}

func (r *DeliveryAttemptRepo) Update(_ context.Context, a *entity.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[a.MessageID]; !ok {
		return fmt.Errorf("Update %s: %w", a.MessageID, entity.ErrNotFound)
	}
	r.attempts[a.MessageID] = a.Clone()
	return nil
}

func (r *DeliveryAttemptRepo) CountByStatus(_ context.Context) (map[entity.DeliveryStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[entity.DeliveryStatus]int, len(entity.Statuses))
	for _, a := range r.attempts {
		counts[a.Status]++
	}
	return counts, nil
}

func (r *DeliveryAttemptRepo) ListPendingRetries(_ context.Context) ([]*entity.DeliveryAttempt, error) {
	r.mu.RLock()
	pending := make([]*entity.DeliveryAttempt, 0)
	for _, a := range r.attempts {
		if a.RetryPending() {
			pending = append(pending, a.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].NextRetryAt.Before(*pending[j].NextRetryAt)
	})
	return pending, nil
}

func (r *DeliveryAttemptRepo) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.attempts {
		if a.Terminal() && a.UpdatedAt.Before(cutoff) {
			delete(r.attempts, id)
			n++
		}
	}
	return n, nil
}
