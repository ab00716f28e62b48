package entity

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus is the ledger state of one delivery attempt.
type DeliveryStatus string

const (
	StatusQueued     DeliveryStatus = "queued"
	StatusSent       DeliveryStatus = "sent"
	StatusDelivered  DeliveryStatus = "delivered"
	StatusBounced    DeliveryStatus = "bounced"
	StatusComplained DeliveryStatus = "complained"
	StatusFailed     DeliveryStatus = "failed"
)

// Statuses lists every status, used for statistics output.
var Statuses = []DeliveryStatus{
	StatusQueued, StatusSent, StatusDelivered, StatusBounced, StatusComplained, StatusFailed,
}

// Valid reports whether s is a known status.
func (s DeliveryStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseDeliveryStatus maps gateway vocabulary onto ledger statuses.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "accepted", "scheduled":
		return StatusQueued, nil
	case "sent", "sending":
		return StatusSent, nil
	case "delivered", "delivery", "success":
		return StatusDelivered, nil
	case "bounced", "bounce", "hardbounce", "softbounce":
		return StatusBounced, nil
	case "complained", "spamcomplaint", "spam_complaint", "spam":
		return StatusComplained, nil
	case "failed", "undelivered", "rejected", "expired":
		return StatusFailed, nil
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("invalid delivery status %q", raw)}
}

// DeliveryPayload is the rendered content of one channel message.
// It is stored on the ledger entry so a retry can resend without the original event.
type DeliveryPayload struct {
	EventID   string    `json:"eventId"`
	Category  Category  `json:"category"`
	Priority  Priority  `json:"priority"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Subject   string    `json:"subject,omitempty"`
	Recipient Recipient `json:"recipient"`
}

// DeliveryAttempt is the ledger entry for one channel of one event.
type DeliveryAttempt struct {
	MessageID   string          `json:"messageId"`
	EventID     string          `json:"eventId"`
	Channel     Channel         `json:"channel"`
	Status      DeliveryStatus  `json:"status"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	NextRetryAt *time.Time      `json:"nextRetryAt,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
	Payload     DeliveryPayload `json:"payload"`
}

// RetryPending reports whether the entry failed and is waiting for a resend.
func (a *DeliveryAttempt) RetryPending() bool {
	return a.Status == StatusFailed && a.NextRetryAt != nil
}

// Terminal reports whether the entry has no further outgoing transitions.
// A failed entry is terminal once no retry is pending.
func (a *DeliveryAttempt) Terminal() bool {
	switch a.Status {
	case StatusDelivered, StatusBounced, StatusComplained:
		return true
	case StatusFailed:
		return a.NextRetryAt == nil
	}
	return false
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (a *DeliveryAttempt) Clone() *DeliveryAttempt {
	if a == nil {
		return nil
	}
	c := *a
	if a.NextRetryAt != nil {
		t := *a.NextRetryAt
		c.NextRetryAt = &t
	}
	return &c
}

// WebhookEvent is an inbound gateway status callback.
type WebhookEvent struct {
	MessageID         string         `json:"messageId"`
	Provider          Channel        `json:"provider"`
	Event             string         `json:"event"`
	Status            DeliveryStatus `json:"status"`
	Reason            string         `json:"reason,omitempty"`
	ProviderTimestamp time.Time      `json:"providerTimestamp"`
	ReceivedAt        time.Time      `json:"receivedAt"`
	// Attempt is the ledger attempt count when the callback arrived.
	Attempt int `json:"attempt,omitempty"`
}

// DedupKey identifies a gateway callback across replays. Callbacks without
// a provider timestamp are keyed by the attempt they report on, so a failure
// of a resend is not mistaken for a replay of the first failure.
func (e *WebhookEvent) DedupKey() string {
	if e.ProviderTimestamp.IsZero() {
		return fmt.Sprintf("%s|%s|a%d", e.MessageID, e.Status, e.Attempt)
	}
	return fmt.Sprintf("%s|%s|%d", e.MessageID, e.Status, e.ProviderTimestamp.UnixMilli())
}

// DeliveryResult is the structured outcome of a channel send. Providers
// return it instead of an error so the dispatcher can record every outcome.
type DeliveryResult struct {
	Success           bool
	Succeeded         int
	Failed            int
	ProviderMessageID string
	// Confirmed is set when the provider knows the message reached the user,
	// so no webhook will follow.
	Confirmed bool
	Err       error
}

// DispatchResult maps each attempted channel to whether its send succeeded.
// Skipped channels are absent.
type DispatchResult map[Channel]bool
