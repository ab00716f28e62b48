// Package ledger is the single source of truth for delivery attempt state.
// It owns the status state machine and the retry policy; storage is delegated
// to a repository.DeliveryAttemptRepository.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/repository"
)

const lockStripes = 64

// Outcome describes the effect of ApplyStatus on one entry.
type Outcome struct {
	// Attempt is the entry after the call.
	Attempt *entity.DeliveryAttempt
	// Previous is the status before the call.
	Previous entity.DeliveryStatus
	// Changed is false when the report was ignored.
	Changed bool
	// RetryAt is set when a resend should be scheduled.
	RetryAt *time.Time
	// Exhausted is set when a failure used up the retry budget.
	Exhausted bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger used for transition logs.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Ledger tracks every delivery attempt.
type Ledger struct {
	repo   repository.DeliveryAttemptRepository
	policy RetryPolicy
	now    func() time.Time
	logger *slog.Logger

	// writes to one message id are serialized through its stripe
	locks [lockStripes]sync.Mutex
}

// New creates a Ledger over repo.
func New(repo repository.DeliveryAttemptRepository, policy RetryPolicy, opts ...Option) *Ledger {
	l := &Ledger{
		repo:   repo,
		policy: policy,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the retry policy in force.
func (l *Ledger) Policy() RetryPolicy {
	return l.policy
}

func (l *Ledger) lock(messageID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(messageID))
	mu := &l.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Create records the first send of a message with status sent and one attempt.
func (l *Ledger) Create(ctx context.Context, messageID string, channel entity.Channel, payload entity.DeliveryPayload) (*entity.DeliveryAttempt, error) {
	if messageID == "" {
		return nil, &entity.ValidationError{Field: "messageId", Message: "message id is required"}
	}
	if !channel.Valid() {
		return nil, &entity.ValidationError{Field: "channel", Message: "invalid channel " + string(channel)}
	}

	now := l.now()
	a := &entity.DeliveryAttempt{
		MessageID: messageID,
		EventID:   payload.EventID,
		Channel:   channel,
		Status:    entity.StatusSent,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
		Payload:   payload,
	}

	unlock := l.lock(messageID)
	defer unlock()
	if err := l.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create ledger entry: %w", err)
	}
	ledgerTransitionsTotal.WithLabelValues(string(channel), "", string(entity.StatusSent)).Inc()
	return a, nil
}

// Get returns the entry or entity.ErrUnknownMessage.
func (l *Ledger) Get(ctx context.Context, messageID string) (*entity.DeliveryAttempt, error) {
	a, err := l.repo.Get(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%s: %w", messageID, entity.ErrUnknownMessage)
	}
	return a, nil
}

// ApplyStatus applies a reported status. Unknown ids return
// entity.ErrUnknownMessage without writing anything; reports the state
// machine does not allow return entity.ErrInvalidTransition and leave the
// entry untouched. A failed report consumes one retry: while sends remain the
// entry stays failed with a NextRetryAt deadline, otherwise it becomes
// terminally failed.
func (l *Ledger) ApplyStatus(ctx context.Context, messageID string, status entity.DeliveryStatus, reason string) (Outcome, error) {
	if !status.Valid() {
		return Outcome{}, &entity.ValidationError{Field: "status", Message: "invalid status " + string(status)}
	}

	unlock := l.lock(messageID)
	defer unlock()

	a, err := l.repo.Get(ctx, messageID)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply status: %w", err)
	}
	if a == nil {
		ledgerRejectedTotal.WithLabelValues("unknown").Inc()
		return Outcome{}, fmt.Errorf("%s: %w", messageID, entity.ErrUnknownMessage)
	}

	out := Outcome{Attempt: a, Previous: a.Status}
	if !canTransition(a, status) {
		ledgerRejectedTotal.WithLabelValues("invalid_transition").Inc()
		return out, fmt.Errorf("%s %s -> %s: %w", messageID, a.Status, status, entity.ErrInvalidTransition)
	}

	now := l.now()
	next := a.Clone()
	next.Status = status
	next.UpdatedAt = now
	if reason != "" {
		next.LastError = reason
	}

	if status == entity.StatusFailed {
		if a.Attempts < l.policy.MaxRetries {
			next.Attempts = a.Attempts + 1
			retryAt := now.Add(l.policy.BackoffDelay(next.Attempts))
			next.NextRetryAt = &retryAt
			out.RetryAt = &retryAt
			ledgerRetriesTotal.WithLabelValues(string(a.Channel), "scheduled").Inc()
		} else {
			next.NextRetryAt = nil
			out.Exhausted = true
			ledgerRetriesTotal.WithLabelValues(string(a.Channel), "exhausted").Inc()
		}
	}

	if err := l.repo.Update(ctx, next); err != nil {
		return out, fmt.Errorf("apply status: %w", err)
	}
	ledgerTransitionsTotal.WithLabelValues(string(a.Channel), string(a.Status), string(status)).Inc()

	l.logger.Debug("ledger transition",
		slog.String("message_id", messageID),
		slog.String("channel", string(a.Channel)),
		slog.String("from", string(a.Status)),
		slog.String("to", string(status)),
		slog.Int("attempts", next.Attempts),
		slog.Bool("exhausted", out.Exhausted))

	out.Attempt = next
	out.Changed = true
	return out, nil
}

// MarkResent moves an entry waiting for a retry back to sent.
func (l *Ledger) MarkResent(ctx context.Context, messageID string) (*entity.DeliveryAttempt, error) {
	unlock := l.lock(messageID)
	defer unlock()

	a, err := l.repo.Get(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("mark resent: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%s: %w", messageID, entity.ErrUnknownMessage)
	}
	if !a.RetryPending() {
		return nil, fmt.Errorf("%s %s -> %s: %w", messageID, a.Status, entity.StatusSent, entity.ErrInvalidTransition)
	}

	next := a.Clone()
	next.Status = entity.StatusSent
	next.NextRetryAt = nil
	next.UpdatedAt = l.now()
	if err := l.repo.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("mark resent: %w", err)
	}
	ledgerTransitionsTotal.WithLabelValues(string(a.Channel), string(entity.StatusFailed), string(entity.StatusSent)).Inc()
	return next, nil
}

// Statistics counts entries per status. Every known status is present.
func (l *Ledger) Statistics(ctx context.Context) (map[entity.DeliveryStatus]int, error) {
	counts, err := l.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger statistics: %w", err)
	}
	stats := make(map[entity.DeliveryStatus]int, len(entity.Statuses))
	for _, s := range entity.Statuses {
		stats[s] = counts[s]
	}
	return stats, nil
}

// PendingRetries lists entries waiting for a resend, earliest first.
func (l *Ledger) PendingRetries(ctx context.Context) ([]*entity.DeliveryAttempt, error) {
	pending, err := l.repo.ListPendingRetries(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending retries: %w", err)
	}
	return pending, nil
}

// Sweep deletes terminal entries last updated more than retention ago.
func (l *Ledger) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("sweep retention must be positive")
	}
	cutoff := l.now().Add(-retention)
	n, err := l.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep ledger: %w", err)
	}
	ledgerSweptTotal.Add(float64(n))
	l.logger.Info("ledger sweep completed",
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff))
	return n, nil
}
