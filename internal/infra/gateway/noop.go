package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"

	"farm-notify/internal/domain/entity"
)

// DryRunGateway stands in for both the SMS and the email gateway in local
// development: it logs the message and reports success without sending.
type DryRunGateway struct {
	logger *slog.Logger
	sent   atomic.Int64
}

// NewDryRunGateway creates a DryRunGateway.
func NewDryRunGateway(logger *slog.Logger) *DryRunGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunGateway{logger: logger}
}

// Configured is always true.
func (g *DryRunGateway) Configured() bool { return true }

// Sent returns how many messages were accepted.
func (g *DryRunGateway) Sent() int64 { return g.sent.Load() }

func (g *DryRunGateway) SendSMS(ctx context.Context, messageID string, payload entity.DeliveryPayload) (string, error) {
	return g.record(ctx, entity.ChannelSMS, messageID, payload)
}

func (g *DryRunGateway) SendEmail(ctx context.Context, messageID string, payload entity.DeliveryPayload) (string, error) {
	return g.record(ctx, entity.ChannelEmail, messageID, payload)
}

func (g *DryRunGateway) record(ctx context.Context, ch entity.Channel, messageID string, payload entity.DeliveryPayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.sent.Add(1)
	g.logger.Info("dry-run delivery",
		slog.String("channel", string(ch)),
		slog.String("message_id", messageID),
		slog.String("category", string(payload.Category)),
		slog.String("title", payload.Title),
		slog.Int64("user_id", payload.Recipient.UserID))
	return "dryrun-" + messageID, nil
}
