// Package notify fans a NotificationEvent out to the push, SMS and email
// channels the user has enabled, records every send in the delivery ledger,
// and resends failed deliveries when the retry scheduler asks for it.
//
// One channel failing never affects another: each send runs in its own
// goroutine with its own timeout and panic recovery, and Dispatch always
// returns a per-channel result map instead of an error.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/observability/tracing"
	"farm-notify/internal/usecase/ledger"
)

// Service dispatches notifications to delivery channels.
type Service interface {
	// Dispatch sends event to every channel enabled in prefs and returns
	// whether each attempted channel succeeded. Skipped channels are absent.
	// Once Shutdown has started it attempts nothing and the result is empty.
	Dispatch(ctx context.Context, event *entity.NotificationEvent, prefs *entity.UserNotificationPreferences) entity.DispatchResult

	// Resend moves a ledger entry waiting for a retry back to sent and sends
	// its stored payload through the same channel.
	Resend(ctx context.Context, messageID string) error

	// ChannelHealth reports configuration and circuit breaker state per channel.
	ChannelHealth() []ChannelHealthStatus

	// Shutdown waits for in-flight sends or until ctx is done.
	Shutdown(ctx context.Context) error
}

// RetryScheduler receives resend deadlines produced by failed sends.
type RetryScheduler interface {
	Schedule(messageID string, at time.Time)
	Cancel(messageID string)
}

// ChannelHealthStatus represents the health of one channel provider.
type ChannelHealthStatus struct {
	Channel            entity.Channel `json:"channel"`
	Configured         bool           `json:"configured"`
	CircuitBreaker     string         `json:"circuitBreaker,omitempty"` // closed|half-open|open
	CircuitBreakerOpen bool           `json:"circuitBreakerOpen"`
}

// Config tunes the dispatcher.
type Config struct {
	// MaxConcurrent bounds in-flight channel sends across all dispatches.
	MaxConcurrent int
	// SendTimeout bounds one channel send.
	SendTimeout time.Duration
	// WorkerWait is how long a send waits for a free slot before it is dropped.
	WorkerWait time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		SendTimeout:   15 * time.Second,
		WorkerWait:    5 * time.Second,
	}
}

// Option configures the service.
type Option func(*service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithTracer overrides the package tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *service) { s.tracer = tracer }
}

// messageNamespace scopes the deterministic message ids.
var messageNamespace = uuid.MustParse("3b8f4c2a-7d1e-5a60-9c34-1f0e2d7b6a58")

// MessageID derives the ledger key for event on ch. The same event always
// maps to the same id per channel, so a repeated dispatch cannot create a
// second ledger entry.
func MessageID(eventID string, ch entity.Channel) string {
	return uuid.NewSHA1(messageNamespace, []byte(eventID+"/"+string(ch))).String()
}

type service struct {
	providers map[entity.Channel]ChannelProvider
	ledger    *ledger.Ledger
	renderer  *Renderer
	scheduler RetryScheduler
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer

	workerPool chan struct{}

	// lifeMu orders wg.Add against Shutdown's wg.Wait
	lifeMu         sync.Mutex
	closing        bool
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewService creates the dispatcher. scheduler may be nil, in which case
// failed sends are recorded but never resent.
func NewService(
	l *ledger.Ledger,
	renderer *Renderer,
	scheduler RetryScheduler,
	providers []ChannelProvider,
	cfg Config,
	opts ...Option,
) Service {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.WorkerWait <= 0 {
		cfg.WorkerWait = def.WorkerWait
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	s := &service{
		providers:      make(map[entity.Channel]ChannelProvider, len(providers)),
		ledger:         l,
		renderer:       renderer,
		scheduler:      scheduler,
		cfg:            cfg,
		logger:         slog.Default(),
		tracer:         tracing.GetTracer(),
		workerPool:     make(chan struct{}, cfg.MaxConcurrent),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	configured := 0
	for _, p := range providers {
		s.providers[p.Channel()] = p
		if p.IsConfigured() {
			configured++
		}
	}
	SetChannelsConfigured(float64(configured))
	return s
}

// skipReason returns why ch is not attempted for this event, or "".
func (s *service) skipReason(ch entity.Channel, event *entity.NotificationEvent, prefs *entity.UserNotificationPreferences) string {
	if !prefs.Enabled(event.Category, ch) {
		return "opted_out"
	}
	p, ok := s.providers[ch]
	if !ok || !p.IsConfigured() {
		return "not_configured"
	}
	switch ch {
	case entity.ChannelPush:
		if !prefs.HasPushSubscriptions() {
			return "no_contact"
		}
	case entity.ChannelSMS:
		if !prefs.HasPhone() {
			return "no_contact"
		}
	case entity.ChannelEmail:
		if !prefs.HasEmail() {
			return "no_contact"
		}
	}
	return ""
}

// Dispatch implements Service.Dispatch.
func (s *service) Dispatch(ctx context.Context, event *entity.NotificationEvent, prefs *entity.UserNotificationPreferences) entity.DispatchResult {
	result := entity.DispatchResult{}
	if !s.begin() {
		RecordDropped("all", "shutting_down")
		s.logger.Warn("dispatch rejected, service shutting down", slog.Any("error", ErrShuttingDown))
		return result
	}
	defer s.wg.Done()

	if event == nil || prefs == nil {
		s.logger.Warn("invalid dispatch input",
			slog.Bool("nil_event", event == nil),
			slog.Bool("nil_preferences", prefs == nil))
		return result
	}
	// validate a copy; the caller's event is never mutated
	ev := *event
	event = &ev
	if err := event.Validate(); err != nil {
		s.logger.Warn("rejecting invalid notification event",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		return result
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}

	ctx, span := s.tracer.Start(ctx, "notify.Dispatch", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.category", string(event.Category)),
		attribute.Int64("user.id", event.UserID),
	))
	defer span.End()

	payload, err := s.renderer.Render(event, prefs.Recipient())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		s.logger.Error("render notification failed",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		return result
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	for _, ch := range entity.Channels {
		if reason := s.skipReason(ch, event, prefs); reason != "" {
			RecordSkipped(string(ch), reason)
			s.logger.Debug("channel skipped",
				slog.String("event_id", event.ID),
				slog.String("channel", string(ch)),
				slog.String("reason", reason),
				slog.Any("error", entity.ErrChannelUnavailable))
			continue
		}

		provider := s.providers[ch]
		eg.Go(func() error {
			ok := s.deliverFirst(ctx, event.ID, provider, payload)
			mu.Lock()
			result[ch] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	span.SetAttributes(attribute.Int("channels.attempted", len(result)))
	s.logger.Info("notification dispatched",
		slog.String("event_id", event.ID),
		slog.String("category", string(event.Category)),
		slog.Int64("user_id", event.UserID),
		slog.Any("results", result))
	return result
}

// deliverFirst creates the ledger entry and performs the first send.
func (s *service) deliverFirst(ctx context.Context, eventID string, p ChannelProvider, payload entity.DeliveryPayload) bool {
	ch := p.Channel()
	messageID := MessageID(eventID, ch)
	// ledger writes outlive a canceled request
	ledgerCtx := context.WithoutCancel(ctx)

	if _, err := s.ledger.Create(ledgerCtx, messageID, ch, payload); err != nil {
		if errors.Is(err, entity.ErrAlreadyExists) {
			RecordSkipped(string(ch), "duplicate")
			existing, getErr := s.ledger.Get(ledgerCtx, messageID)
			if getErr != nil {
				return false
			}
			s.logger.Info("event already dispatched on channel",
				slog.String("message_id", messageID),
				slog.String("channel", string(ch)),
				slog.String("status", string(existing.Status)))
			return existing.Status != entity.StatusFailed
		}
		s.logger.Error("ledger create failed, send skipped",
			slog.String("message_id", messageID),
			slog.String("channel", string(ch)),
			slog.Any("error", err))
		return false
	}

	res := s.send(ctx, p, messageID, payload, "first")
	return s.record(ledgerCtx, messageID, ch, res)
}

// send runs one provider call under the worker pool, a timeout and panic recovery.
func (s *service) send(ctx context.Context, p ChannelProvider, messageID string, payload entity.DeliveryPayload, kind string) (res entity.DeliveryResult) {
	ch := p.Channel()

	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(s.cfg.WorkerWait):
		RecordDropped(string(ch), "pool_full")
		return failure(ch, "pool_full", ErrNotificationDropped)
	}

	activeSends.Inc()
	defer activeSends.Dec()

	// sends are bounded by shutdown, not by the caller's request
	sendCtx, cancel := context.WithTimeout(s.shutdownCtx, s.cfg.SendTimeout)
	defer cancel()
	sendCtx, span := s.tracer.Start(trace.ContextWithSpan(sendCtx, trace.SpanFromContext(ctx)), "notify.send",
		trace.WithAttributes(
			attribute.String("channel", string(ch)),
			attribute.String("message.id", messageID),
			attribute.String("send.kind", kind),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in channel send",
				slog.String("channel", string(ch)),
				slog.String("message_id", messageID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res = failure(ch, "panic", fmt.Errorf("provider panic: %v", r))
		}
		if !res.Success {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "send failed")
		}
	}()

	RecordDispatch(string(ch), kind)
	start := time.Now()
	res = p.Send(sendCtx, messageID, payload)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int("endpoints.succeeded", res.Succeeded),
		attribute.Int("endpoints.failed", res.Failed),
	)
	if res.Success {
		RecordSuccess(string(ch), duration)
		s.logger.Info("channel send succeeded",
			slog.String("channel", string(ch)),
			slog.String("message_id", messageID),
			slog.String("provider_message_id", res.ProviderMessageID),
			slog.Duration("send_duration", duration))
	} else {
		RecordFailure(string(ch), duration)
		s.logger.Warn("channel send failed",
			slog.String("channel", string(ch)),
			slog.String("message_id", messageID),
			slog.Duration("send_duration", duration),
			slog.Any("error", res.Err))
	}
	return res
}

// record writes the send outcome into the ledger and schedules a resend
// when the retry policy allows one.
func (s *service) record(ctx context.Context, messageID string, ch entity.Channel, res entity.DeliveryResult) bool {
	if res.Success {
		if res.Confirmed {
			if _, err := s.ledger.ApplyStatus(ctx, messageID, entity.StatusDelivered, ""); err != nil {
				s.logger.Warn("ledger delivered update failed",
					slog.String("message_id", messageID),
					slog.Any("error", err))
			}
		}
		return true
	}

	reason := "send failed"
	if res.Err != nil {
		reason = res.Err.Error()
	}
	out, err := s.ledger.ApplyStatus(ctx, messageID, entity.StatusFailed, reason)
	if err != nil {
		s.logger.Warn("ledger failed update rejected",
			slog.String("message_id", messageID),
			slog.Any("error", err))
		return false
	}
	switch {
	case out.RetryAt != nil && s.scheduler != nil:
		s.scheduler.Schedule(messageID, *out.RetryAt)
		s.logger.Info("delivery retry scheduled",
			slog.String("message_id", messageID),
			slog.String("channel", string(ch)),
			slog.Int("attempts", out.Attempt.Attempts),
			slog.Time("retry_at", *out.RetryAt))
	case out.Exhausted:
		s.logger.Warn("delivery retries exhausted",
			slog.String("message_id", messageID),
			slog.String("channel", string(ch)),
			slog.Int("attempts", out.Attempt.Attempts))
	}
	return false
}

// Resend implements Service.Resend.
func (s *service) Resend(ctx context.Context, messageID string) error {
	if !s.begin() {
		return ErrShuttingDown
	}
	defer s.wg.Done()

	a, err := s.ledger.MarkResent(ctx, messageID)
	if err != nil {
		return fmt.Errorf("resend %s: %w", messageID, err)
	}

	p, ok := s.providers[a.Channel]
	var res entity.DeliveryResult
	if !ok {
		res = failure(a.Channel, "no_provider", ErrNoProvider)
	} else {
		res = s.send(ctx, p, messageID, a.Payload, "retry")
	}
	if s.record(context.WithoutCancel(ctx), messageID, a.Channel, res) {
		return nil
	}
	return res.Err
}

// ChannelHealth implements Service.ChannelHealth.
func (s *service) ChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(s.providers))
	for _, ch := range entity.Channels {
		p, ok := s.providers[ch]
		if !ok {
			continue
		}
		st := ChannelHealthStatus{Channel: ch, Configured: p.IsConfigured()}
		if gp, ok := p.(*GatewayProvider); ok {
			st.CircuitBreaker = gp.Breaker().State().String()
			st.CircuitBreakerOpen = gp.Breaker().IsOpen()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// begin registers an in-flight operation. It reports false once Shutdown
// has started.
func (s *service) begin() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// Shutdown implements Service.Shutdown.
func (s *service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down notification service")
	s.lifeMu.Lock()
	s.closing = true
	s.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.shutdownCancel()
		s.logger.Info("notification service shutdown complete")
		return nil
	case <-ctx.Done():
		// abort whatever is still sending
		s.shutdownCancel()
		s.logger.Warn("notification service shutdown timeout")
		return ctx.Err()
	}
}
