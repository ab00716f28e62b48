package gateway

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mrz1836/postmark"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/resilience/retry"
)

// EmailConfig holds Postmark credentials.
type EmailConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	// BaseURL overrides the Postmark API endpoint.
	BaseURL string
}

// Configured reports whether the credentials needed to send are present.
func (c EmailConfig) Configured() bool {
	return c.ServerToken != "" && c.From != ""
}

// Postmark error codes that will not succeed on resend.
// https://postmarkapp.com/developer/api/overview#error-codes
const (
	postmarkInvalidRequest    = 300
	postmarkInactiveRecipient = 406
)

// PostmarkGateway sends email through the Postmark transactional API.
type PostmarkGateway struct {
	config EmailConfig
	client *postmark.Client
	retry  retry.Config
	logger *slog.Logger
}

// NewPostmarkGateway creates a PostmarkGateway.
func NewPostmarkGateway(config EmailConfig, logger *slog.Logger) *PostmarkGateway {
	client := postmark.NewClient(config.ServerToken, config.AccountToken)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostmarkGateway{
		config: config,
		client: client,
		retry:  retry.EmailGatewayConfig(),
		logger: logger,
	}
}

// Configured reports whether the gateway has credentials.
func (g *PostmarkGateway) Configured() bool {
	return g.config.Configured()
}

var htmlBody = template.Must(template.New("email").Parse(
	`<h2>{{.Title}}</h2>{{range .Paragraphs}}<p>{{.}}</p>{{end}}`))

func renderHTML(payload entity.DeliveryPayload) (string, error) {
	var b strings.Builder
	err := htmlBody.Execute(&b, struct {
		Title      string
		Paragraphs []string
	}{
		Title:      payload.Title,
		Paragraphs: strings.Split(payload.Body, "\n\n"),
	})
	return b.String(), err
}

// SendEmail sends payload to payload.Recipient.Email and returns the
// Postmark MessageID. The ledger message id travels in the metadata so
// bounce webhooks can be matched back.
func (g *PostmarkGateway) SendEmail(ctx context.Context, messageID string, payload entity.DeliveryPayload) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	if err := entity.ValidateEmail(payload.Recipient.Email); err != nil {
		return "", &ClientError{StatusCode: http.StatusBadRequest, Code: "invalid_email", Message: err.Error()}
	}

	html, err := renderHTML(payload)
	if err != nil {
		return "", fmt.Errorf("render email body: %w", err)
	}
	subject := payload.Subject
	if subject == "" {
		subject = payload.Title
	}

	email := postmark.Email{
		From:       g.config.From,
		To:         payload.Recipient.Email,
		Subject:    subject,
		Tag:        string(payload.Category),
		HTMLBody:   html,
		TextBody:   payload.Body,
		TrackOpens: false,
		Metadata: map[string]string{
			"message_id": messageID,
			"event_id":   payload.EventID,
		},
	}

	var providerID string
	err = retry.WithBackoff(ctx, g.retry, func() error {
		resp, err := g.client.SendEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("postmark request: %w", err)
		}
		switch {
		case resp.ErrorCode == 0:
			providerID = resp.MessageID
			return nil
		case resp.ErrorCode == postmarkInvalidRequest || resp.ErrorCode == postmarkInactiveRecipient:
			return &ClientError{
				StatusCode: http.StatusUnprocessableEntity,
				Code:       fmt.Sprintf("postmark_%d", resp.ErrorCode),
				Message:    "postmark: " + resp.Message,
			}
		default:
			return &ServerError{
				StatusCode: http.StatusBadGateway,
				Message:    fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message),
			}
		}
	})
	if err != nil {
		g.logger.Warn("email send failed",
			slog.String("message_id", messageID),
			slog.Any("error", err))
		return "", err
	}
	return providerID, nil
}
