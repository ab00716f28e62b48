package opsalert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"farm-notify/internal/infra/gateway"
	"farm-notify/internal/resilience/retry"
)

// SlackConfig configures the Slack incoming webhook.
type SlackConfig struct {
	// WebhookURL carries its own token; an empty URL disables Slack.
	WebhookURL string
	Timeout    time.Duration
}

// Slack posts alerts to a Slack incoming webhook as Block Kit messages.
// Incoming webhooks accept about one message per second.
type Slack struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *gateway.RateLimiter
	retry       retry.Config
	logger      *slog.Logger
}

// NewSlack creates a Slack alerter. A zero Timeout defaults to 10s.
func NewSlack(config SlackConfig, logger *slog.Logger) *Slack {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: gateway.NewRateLimiter(1, 1),
		retry:       retry.OpsAlertConfig(),
		logger:      logger,
	}
}

// New returns a Slack alerter when url is set, otherwise Noop.
func New(url string, timeout time.Duration, logger *slog.Logger) Alerter {
	if url == "" {
		return Noop{}
	}
	return NewSlack(SlackConfig{WebhookURL: url, Timeout: timeout}, logger)
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string       `json:"type"`
	Text     *slackText   `json:"text,omitempty"`
	Fields   []*slackText `json:"fields,omitempty"`
	Elements []*slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block Kit limits
const (
	maxSectionText  = 3000
	maxFallbackText = 150
	maxFields       = 10
)

func mrkdwn(s string) *slackText { return &slackText{Type: "mrkdwn", Text: s} }

func buildPayload(a Alert) slackPayload {
	icon := ":warning:"
	if a.Severity == SeverityResolved {
		icon = ":white_check_mark:"
	}
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}

	blocks := []slackBlock{{
		Type: "section",
		Text: mrkdwn(clip(fmt.Sprintf("%s *%s*\n%s", icon, a.Title, a.Text), maxSectionText)),
	}}
	if len(a.Fields) > 0 {
		fields := make([]*slackText, 0, min(len(a.Fields), maxFields))
		for _, f := range a.Fields[:min(len(a.Fields), maxFields)] {
			fields = append(fields, mrkdwn(fmt.Sprintf("*%s*\n%s", f.Label, f.Value)))
		}
		blocks = append(blocks, slackBlock{Type: "section", Fields: fields})
	}
	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []*slackText{mrkdwn("farm-notify • " + at.UTC().Format(time.RFC3339))},
	})

	return slackPayload{
		Text:   clip(a.Title, maxFallbackText),
		Blocks: blocks,
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Alert posts a. 4xx responses fail at once; 429 and 5xx are retried once.
func (s *Slack) Alert(ctx context.Context, a Alert) error {
	body, err := json.Marshal(buildPayload(a))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	err = retry.WithBackoff(ctx, s.retry, func() error {
		return s.post(ctx, body)
	})
	if err != nil {
		s.logger.Error("slack alert failed",
			slog.String("title", a.Title),
			slog.Any("error", err))
		return fmt.Errorf("slack alert: %w", err)
	}
	s.logger.Info("slack alert sent", slog.String("title", a.Title))
	return nil
}

func (s *Slack) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return gateway.ClassifyStatus("slack", resp.StatusCode, raw, retryAfter(resp))
}

func retryAfter(resp *http.Response) time.Duration {
	if s, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	return time.Second
}
