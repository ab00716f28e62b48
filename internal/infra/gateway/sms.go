package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/resilience/retry"
)

// SMSConfig contains configuration for the HTTP SMS gateway.
type SMSConfig struct {
	// URL is the messaging endpoint, e.g. https://api.africastalking.com/version1/messaging
	URL string

	// APIKey is sent in the apiKey header.
	APIKey string

	// Username identifies the account; optional for gateways that key on APIKey only.
	Username string

	// SenderID is the alphanumeric sender shown on the handset.
	SenderID string

	// RateLimit is the sustained request rate in req/s.
	RateLimit float64

	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// Configured reports whether the credentials needed to send are present.
func (c SMSConfig) Configured() bool {
	return c.URL != "" && c.APIKey != ""
}

// SMSGateway sends text messages through a bulk SMS HTTP API. The request is
// a form POST; the response lists one status per recipient.
type SMSGateway struct {
	config      SMSConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retry       retry.Config
	logger      *slog.Logger
}

// NewSMSGateway creates an SMSGateway. A zero Timeout defaults to 10s.
func NewSMSGateway(config SMSConfig, logger *slog.Logger) *SMSGateway {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSGateway{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(config.RateLimit, max(1, int(config.RateLimit))),
		retry:       retry.SMSGatewayConfig(),
		logger:      logger,
	}
}

// Configured reports whether the gateway has credentials.
func (g *SMSGateway) Configured() bool {
	return g.config.Configured()
}

type smsResponse struct {
	SMSMessageData struct {
		Message    string         `json:"Message"`
		Recipients []smsRecipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

type smsRecipient struct {
	StatusCode int    `json:"statusCode"`
	Number     string `json:"number"`
	Status     string `json:"status"`
	MessageID  string `json:"messageId"`
}

// recipient status codes that mean the message was accepted
const (
	smsStatusProcessed = 100
	smsStatusSent      = 101
	smsStatusQueued    = 102
)

const maxSMSLength = 459 // three concatenated GSM-7 segments

// SendSMS sends payload.Body to payload.Recipient.Phone and returns the
// gateway's message id.
func (g *SMSGateway) SendSMS(ctx context.Context, messageID string, payload entity.DeliveryPayload) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	to := payload.Recipient.Phone
	if err := entity.ValidatePhone(to); err != nil {
		return "", &ClientError{StatusCode: http.StatusBadRequest, Code: "invalid_phone", Message: err.Error()}
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	var providerID string
	err := retry.WithBackoff(ctx, g.retry, func() error {
		id, err := g.send(ctx, to, truncate(payload.Body, maxSMSLength))
		if err != nil {
			return err
		}
		providerID = id
		return nil
	})
	if err != nil {
		g.logger.Warn("sms send failed",
			slog.String("message_id", messageID),
			slog.String("event_id", payload.EventID),
			slog.Any("error", err))
		return "", err
	}

	g.logger.Debug("sms accepted",
		slog.String("message_id", messageID),
		slog.String("provider_message_id", providerID))
	return providerID, nil
}

func (g *SMSGateway) send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("to", to)
	form.Set("message", body)
	if g.config.Username != "" {
		form.Set("username", g.config.Username)
	}
	if g.config.SenderID != "" {
		form.Set("from", g.config.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", g.config.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ClassifyStatus("sms gateway", resp.StatusCode, raw, retryAfter(resp))
	}

	var parsed smsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ServerError{StatusCode: resp.StatusCode, Message: "sms gateway: malformed response: " + err.Error()}
	}
	if len(parsed.SMSMessageData.Recipients) == 0 {
		return "", &ClientError{
			StatusCode: http.StatusUnprocessableEntity,
			Code:       "rejected",
			Message:    "sms gateway rejected message: " + parsed.SMSMessageData.Message,
		}
	}

	r := parsed.SMSMessageData.Recipients[0]
	switch r.StatusCode {
	case smsStatusProcessed, smsStatusSent, smsStatusQueued:
		return r.MessageID, nil
	}
	if r.StatusCode >= 500 {
		return "", &ServerError{StatusCode: http.StatusBadGateway, Message: "sms gateway: " + r.Status}
	}
	return "", &ClientError{
		StatusCode: http.StatusUnprocessableEntity,
		Code:       strings.ToLower(strings.ReplaceAll(r.Status, " ", "_")),
		Message:    fmt.Sprintf("sms gateway: recipient %s: %s", r.Number, r.Status),
	}
}

// retryAfter reads the Retry-After header in seconds, defaulting to 5s.
func retryAfter(resp *http.Response) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}
