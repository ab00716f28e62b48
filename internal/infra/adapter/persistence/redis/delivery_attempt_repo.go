package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/repository"
)

// DeliveryAttemptRepo keeps each entry as a JSON string under
// <prefix>attempt:<id>, an id set for scans and a sorted set of pending
// retries scored by due time in unix milliseconds.
type DeliveryAttemptRepo struct {
	client *goredis.Client
	prefix string
}

func NewDeliveryAttemptRepo(client *goredis.Client, prefix string) *DeliveryAttemptRepo {
	if prefix == "" {
		prefix = "farmnotify:"
	}
	return &DeliveryAttemptRepo{client: client, prefix: prefix}
}

var _ repository.DeliveryAttemptRepository = (*DeliveryAttemptRepo)(nil)

func (r *DeliveryAttemptRepo) key(id string) string { return r.prefix + "attempt:" + id }
func (r *DeliveryAttemptRepo) idsKey() string       { return r.prefix + "attempts" }
func (r *DeliveryAttemptRepo) retriesKey() string   { return r.prefix + "retries" }

func (r *DeliveryAttemptRepo) Get(ctx context.Context, messageID string) (*entity.DeliveryAttempt, error) {
	b, err := r.client.Get(ctx, r.key(messageID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	var a entity.DeliveryAttempt
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("Get: unmarshal: %w", err)
	}
	return &a, nil
}

func (r *DeliveryAttemptRepo) Create(ctx context.Context, a *entity.DeliveryAttempt) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("Create: marshal: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(a.MessageID), b, 0).Result()
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if !ok {
		return fmt.Errorf("Create %s: %w", a.MessageID, entity.ErrAlreadyExists)
	}
	return r.index(ctx, a)
}

func (r *DeliveryAttemptRepo) Update(ctx context.Context, a *entity.DeliveryAttempt) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("Update: marshal: %w", err)
	}
	ok, err := r.client.SetXX(ctx, r.key(a.MessageID), b, 0).Result()
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if !ok {
		return fmt.Errorf("Update %s: %w", a.MessageID, entity.ErrNotFound)
	}
	return r.index(ctx, a)
}

// index keeps the id set and the retry schedule in step with the entry.
func (r *DeliveryAttemptRepo) index(ctx context.Context, a *entity.DeliveryAttempt) error {
	_, err := r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SAdd(ctx, r.idsKey(), a.MessageID)
		if a.RetryPending() {
			p.ZAdd(ctx, r.retriesKey(), goredis.Z{
				Score:  float64(a.NextRetryAt.UnixMilli()),
				Member: a.MessageID,
			})
		} else {
			p.ZRem(ctx, r.retriesKey(), a.MessageID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", a.MessageID, err)
	}
	return nil
}

func (r *DeliveryAttemptRepo) load(ctx context.Context, ids []string) ([]*entity.DeliveryAttempt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*entity.DeliveryAttempt, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// deleted between the index read and MGET
			continue
		}
		var a entity.DeliveryAttempt
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		out = append(out, &a)
	}
	return out, nil
}

func (r *DeliveryAttemptRepo) all(ctx context.Context) ([]*entity.DeliveryAttempt, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, ids)
}

func (r *DeliveryAttemptRepo) CountByStatus(ctx context.Context) (map[entity.DeliveryStatus]int, error) {
	attempts, err := r.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	counts := make(map[entity.DeliveryStatus]int, len(entity.Statuses))
	for _, a := range attempts {
		counts[a.Status]++
	}
	return counts, nil
}

func (r *DeliveryAttemptRepo) ListPendingRetries(ctx context.Context) ([]*entity.DeliveryAttempt, error) {
	ids, err := r.client.ZRange(ctx, r.retriesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ListPendingRetries: %w", err)
	}
	attempts, err := r.load(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ListPendingRetries: %w", err)
	}
	pending := attempts[:0]
	for _, a := range attempts {
		if a.RetryPending() {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

func (r *DeliveryAttemptRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	attempts, err := r.all(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	var doomed []string
	for _, a := range attempts {
		if a.Terminal() && a.UpdatedAt.Before(cutoff) {
			doomed = append(doomed, a.MessageID)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	_, err = r.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, id := range doomed {
			p.Del(ctx, r.key(id))
			p.SRem(ctx, r.idsKey(), id)
			p.ZRem(ctx, r.retriesKey(), id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	return int64(len(doomed)), nil
}
