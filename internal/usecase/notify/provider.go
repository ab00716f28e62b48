package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/sony/gobreaker"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/infra/gateway"
	"farm-notify/internal/resilience/circuitbreaker"
)

// ChannelProvider delivers one rendered payload over one channel.
//
// Send never panics and never returns an error: every outcome, including a
// gateway failure, is reported in the DeliveryResult.
type ChannelProvider interface {
	Channel() entity.Channel
	// IsConfigured reports whether credentials/transport are present. The
	// dispatcher skips unconfigured providers without attempting a send.
	IsConfigured() bool
	Send(ctx context.Context, messageID string, payload entity.DeliveryPayload) entity.DeliveryResult
}

// PushTransport enumerates and writes to a user's live endpoints.
type PushTransport interface {
	Endpoints(userID int64) []string
	SendTo(ctx context.Context, endpointID string, frame entity.Frame) error
}

// SMSGateway sends a text message and returns the provider message id.
type SMSGateway interface {
	Configured() bool
	SendSMS(ctx context.Context, messageID string, payload entity.DeliveryPayload) (string, error)
}

// EmailGateway sends an email and returns the provider message id.
type EmailGateway interface {
	Configured() bool
	SendEmail(ctx context.Context, messageID string, payload entity.DeliveryPayload) (string, error)
}

/* ─── push ─── */

// PushProvider writes a notification frame to every live endpoint of the
// recipient. One endpoint succeeding is enough for the send to succeed.
type PushProvider struct {
	transport PushTransport
	now       func() time.Time
	logger    *slog.Logger
}

// NewPushProvider creates a PushProvider. A nil transport leaves the
// provider unconfigured.
func NewPushProvider(transport PushTransport, logger *slog.Logger) *PushProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushProvider{transport: transport, now: time.Now, logger: logger}
}

func (p *PushProvider) Channel() entity.Channel { return entity.ChannelPush }

func (p *PushProvider) IsConfigured() bool { return p.transport != nil }

func (p *PushProvider) Send(ctx context.Context, messageID string, payload entity.DeliveryPayload) (res entity.DeliveryResult) {
	defer recoverInto(&res, entity.ChannelPush, p.logger)

	if p.transport == nil {
		return failure(entity.ChannelPush, "not_configured", entity.ErrChannelUnavailable)
	}
	endpoints := p.transport.Endpoints(payload.Recipient.UserID)
	if len(endpoints) == 0 {
		return failure(entity.ChannelPush, "no_endpoints", entity.ErrChannelUnavailable)
	}

	uid := payload.Recipient.UserID
	frame := entity.Frame{
		Type: entity.FrameNotification,
		Payload: entity.NotificationPayload{
			MessageID: messageID,
			Category:  payload.Category,
			Title:     payload.Title,
			Body:      payload.Body,
			Priority:  payload.Priority,
		},
		Timestamp: p.now(),
		UserID:    &uid,
	}

	var lastErr error
	for _, id := range endpoints {
		if err := p.transport.SendTo(ctx, id, frame); err != nil {
			res.Failed++
			lastErr = err
			p.logger.Debug("push endpoint failed",
				slog.String("message_id", messageID),
				slog.String("endpoint_id", id),
				slog.Any("error", err))
			continue
		}
		res.Succeeded++
	}

	if res.Succeeded == 0 {
		res.Err = &entity.ProviderError{Channel: entity.ChannelPush, Code: "all_endpoints_failed", Err: lastErr}
		return res
	}
	res.Success = true
	res.Confirmed = true
	res.ProviderMessageID = messageID
	return res
}

/* ─── sms / email ─── */

// GatewayProvider adapts an SMS or email gateway to ChannelProvider behind a
// per-channel circuit breaker.
type GatewayProvider struct {
	channel    entity.Channel
	configured func() bool
	send       func(ctx context.Context, messageID string, payload entity.DeliveryPayload) (string, error)
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewSMSProvider wraps an SMS gateway.
func NewSMSProvider(gw SMSGateway, logger *slog.Logger) *GatewayProvider {
	cfg := circuitbreaker.SMSGatewayConfig()
	cfg.IsSuccessful = breakerSuccess
	return newGatewayProvider(entity.ChannelSMS, gw.Configured, gw.SendSMS, circuitbreaker.New(cfg), logger)
}

// NewEmailProvider wraps an email gateway.
func NewEmailProvider(gw EmailGateway, logger *slog.Logger) *GatewayProvider {
	cfg := circuitbreaker.EmailGatewayConfig()
	cfg.IsSuccessful = breakerSuccess
	return newGatewayProvider(entity.ChannelEmail, gw.Configured, gw.SendEmail, circuitbreaker.New(cfg), logger)
}

func newGatewayProvider(
	ch entity.Channel,
	configured func() bool,
	send func(context.Context, string, entity.DeliveryPayload) (string, error),
	breaker *circuitbreaker.CircuitBreaker,
	logger *slog.Logger,
) *GatewayProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayProvider{channel: ch, configured: configured, send: send, breaker: breaker, logger: logger}
}

// breakerSuccess keeps rejected recipients from tripping the breaker; only
// outages count as failures.
func breakerSuccess(err error) bool {
	var clientErr *gateway.ClientError
	return err == nil || errors.As(err, &clientErr)
}

func (p *GatewayProvider) Channel() entity.Channel { return p.channel }

func (p *GatewayProvider) IsConfigured() bool { return p.configured() }

// Breaker exposes the circuit breaker for health reporting.
func (p *GatewayProvider) Breaker() *circuitbreaker.CircuitBreaker { return p.breaker }

func (p *GatewayProvider) Send(ctx context.Context, messageID string, payload entity.DeliveryPayload) (res entity.DeliveryResult) {
	defer recoverInto(&res, p.channel, p.logger)

	if !p.configured() {
		return failure(p.channel, "not_configured", entity.ErrChannelUnavailable)
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.send(ctx, messageID, payload)
	})
	if err != nil {
		code := gateway.ErrorCode(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			code = "circuit_open"
			RecordCircuitBreakerOpen(string(p.channel))
		}
		return failure(p.channel, code, err)
	}

	providerID, _ := out.(string)
	return entity.DeliveryResult{
		Success:           true,
		Succeeded:         1,
		ProviderMessageID: providerID,
	}
}

/* ─── helpers ─── */

func failure(ch entity.Channel, code string, err error) entity.DeliveryResult {
	return entity.DeliveryResult{
		Failed: 1,
		Err:    &entity.ProviderError{Channel: ch, Code: code, Err: err},
	}
}

// recoverInto turns a panic inside a provider into a failed result.
func recoverInto(res *entity.DeliveryResult, ch entity.Channel, logger *slog.Logger) {
	if r := recover(); r != nil {
		logger.Error("panic in channel provider",
			slog.String("channel", string(ch)),
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())))
		*res = failure(ch, "panic", fmt.Errorf("provider panic: %v", r))
	}
}
