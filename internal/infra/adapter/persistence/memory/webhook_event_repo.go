package memory

import (
	"context"
	"sync"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/repository"
)

type WebhookEventRepo struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	byMessage map[string][]*entity.WebhookEvent
}

func NewWebhookEventRepo() *WebhookEventRepo {
	return &WebhookEventRepo{
		seen:      make(map[string]struct{}),
		byMessage: make(map[string][]*entity.WebhookEvent),
	}
}

var _ repository.WebhookEventRepository = (*WebhookEventRepo)(nil)

func (r *WebhookEventRepo) Append(_ context.Context, e *entity.WebhookEvent) (bool, error) {
	key := e.DedupKey()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[key]; dup {
		return false, nil
	}
	r.seen[key] = struct{}{}
	cp := *e
	r.byMessage[e.MessageID] = append(r.byMessage[e.MessageID], &cp)
	return true, nil
}

func (r *WebhookEventRepo) Remove(_ context.Context, dedupKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[dedupKey]; !ok {
		return nil
	}
	delete(r.seen, dedupKey)
	for id, events := range r.byMessage {
		kept := events[:0]
		for _, e := range events {
			if e.DedupKey() != dedupKey {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(r.byMessage, id)
			continue
		}
		r.byMessage[id] = kept
	}
	return nil
}

func (r *WebhookEventRepo) ListByMessage(_ context.Context, messageID string) ([]*entity.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.byMessage[messageID]
	out := make([]*entity.WebhookEvent, len(events))
	for i, e := range events {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}
