// Package reconcile applies asynchronous gateway callbacks to the delivery
// ledger and runs the retry scheduler that resends failed deliveries.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/repository"
	"farm-notify/internal/usecase/ledger"
)

// Outcome classifies how a webhook event was handled.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnknown   Outcome = "unknown"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeError     Outcome = "error"
)

// Result is what ProcessEvent did with one event. Err carries the cause for
// every outcome except applied. Only OutcomeError is a failure the caller
// should report back to the gateway.
type Result struct {
	Outcome   Outcome
	Status    entity.DeliveryStatus
	Attempts  int
	RetryAt   *time.Time
	Exhausted bool
	Err       error
}

// Scheduler is the part of the retry scheduler the reconciler needs.
type Scheduler interface {
	Schedule(messageID string, at time.Time)
	Cancel(messageID string)
}

// Reconciler consumes gateway status callbacks.
type Reconciler struct {
	ledger    *ledger.Ledger
	archive   repository.WebhookEventRepository
	scheduler Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler. archive may be nil, in which case
// duplicates are caught only by the ledger state machine.
func NewReconciler(l *ledger.Ledger, archive repository.WebhookEventRepository, scheduler Scheduler, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		ledger:    l,
		archive:   archive,
		scheduler: scheduler,
		now:       time.Now,
		logger:    logger,
	}
}

func validate(ev *entity.WebhookEvent) error {
	if ev.MessageID == "" {
		return &entity.ValidationError{Field: "messageId", Message: "is required"}
	}
	if !ev.Status.Valid() {
		return &entity.ValidationError{Field: "status", Message: "invalid status " + string(ev.Status)}
	}
	if ev.Provider != "" && ev.Provider != entity.ChannelSMS && ev.Provider != entity.ChannelEmail {
		return &entity.ValidationError{Field: "provider", Message: "unsupported provider " + string(ev.Provider)}
	}
	return nil
}

// ProcessEvent applies one callback to the ledger. Duplicate, unknown and
// out-of-order callbacks are logged and dropped. A failure that still has
// retry budget is handed to the scheduler; the resend itself happens later
// on the scheduler loop. The archive keeps only callbacks that changed the
// ledger: after OutcomeIgnored or OutcomeError the gateway may deliver the
// same callback again and it is evaluated afresh.
func (r *Reconciler) ProcessEvent(ctx context.Context, ev entity.WebhookEvent) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while reconciling webhook",
				slog.String("message_id", ev.MessageID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			res = Result{Outcome: OutcomeError, Err: fmt.Errorf("reconcile panic: %v", rec)}
		}
		webhookEventsTotal.WithLabelValues(string(ev.Provider), string(res.Outcome)).Inc()
	}()

	if err := validate(&ev); err != nil {
		r.logger.Warn("invalid webhook event",
			slog.String("message_id", ev.MessageID),
			slog.Any("error", err))
		return Result{Outcome: OutcomeInvalid, Err: err}
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = r.now()
	}

	log := r.logger.With(
		slog.String("message_id", ev.MessageID),
		slog.String("provider", string(ev.Provider)),
		slog.String("status", string(ev.Status)))

	current, err := r.ledger.Get(ctx, ev.MessageID)
	switch {
	case errors.Is(err, entity.ErrUnknownMessage):
		log.Info("webhook for unknown message discarded")
		return Result{Outcome: OutcomeUnknown, Status: ev.Status, Err: err}
	case err != nil:
		log.Error("load ledger entry failed", slog.Any("error", err))
		return Result{Outcome: OutcomeError, Err: err}
	}
	ev.Attempt = current.Attempts

	archived := false
	if r.archive != nil {
		added, err := r.archive.Append(ctx, &ev)
		switch {
		case err != nil:
			// the ledger state machine still rejects replays
			log.Warn("webhook archive failed", slog.Any("error", err))
		case !added:
			log.Info("duplicate webhook dropped", slog.String("dedup_key", ev.DedupKey()))
			return Result{Outcome: OutcomeDuplicate, Status: ev.Status, Err: entity.ErrDuplicateWebhook}
		default:
			archived = true
		}
	}

	out, err := r.ledger.ApplyStatus(ctx, ev.MessageID, ev.Status, ev.Reason)
	switch {
	case errors.Is(err, entity.ErrUnknownMessage):
		log.Info("webhook for unknown message discarded")
		r.release(ctx, log, &ev, archived)
		return Result{Outcome: OutcomeUnknown, Status: ev.Status, Err: err}
	case errors.Is(err, entity.ErrInvalidTransition):
		status := entity.DeliveryStatus("")
		if out.Attempt != nil {
			status = out.Attempt.Status
		}
		log.Info("webhook ignored by ledger", slog.String("current", string(status)))
		r.release(ctx, log, &ev, archived)
		return Result{Outcome: OutcomeIgnored, Status: status, Err: err}
	case err != nil:
		log.Error("apply webhook status failed", slog.Any("error", err))
		r.release(ctx, log, &ev, archived)
		return Result{Outcome: OutcomeError, Err: err}
	}

	res = Result{
		Outcome:   OutcomeApplied,
		Status:    out.Attempt.Status,
		Attempts:  out.Attempt.Attempts,
		RetryAt:   out.RetryAt,
		Exhausted: out.Exhausted,
	}
	switch {
	case out.RetryAt != nil:
		if r.scheduler != nil {
			r.scheduler.Schedule(ev.MessageID, *out.RetryAt)
		}
		log.Info("delivery failed, retry scheduled",
			slog.Int("attempts", out.Attempt.Attempts),
			slog.Time("retry_at", *out.RetryAt),
			slog.String("reason", ev.Reason))
	case out.Attempt.Terminal():
		if r.scheduler != nil {
			r.scheduler.Cancel(ev.MessageID)
		}
		if out.Exhausted {
			log.Warn("delivery failed, retries exhausted",
				slog.Int("attempts", out.Attempt.Attempts),
				slog.String("reason", ev.Reason))
		} else {
			log.Info("delivery reached final status", slog.Int("attempts", out.Attempt.Attempts))
		}
	default:
		log.Debug("delivery status updated")
	}
	return res
}

// release drops the dedup key of a callback the ledger did not apply.
func (r *Reconciler) release(ctx context.Context, log *slog.Logger, ev *entity.WebhookEvent, archived bool) {
	if !archived {
		return
	}
	if err := r.archive.Remove(ctx, ev.DedupKey()); err != nil {
		log.Error("release webhook dedup key failed", slog.Any("error", err))
	}
}
