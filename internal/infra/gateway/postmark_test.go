package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/resilience/retry"
)

func emailPayload() entity.DeliveryPayload {
	return entity.DeliveryPayload{
		EventID:   "ev-9",
		Category:  entity.CategoryVaccinationReminder,
		Title:     "Vaccination due",
		Subject:   "Vaccination due for Daisy",
		Body:      "Daisy is due for FMD vaccination.\n\nBook the vet.",
		Recipient: entity.Recipient{UserID: 3, Email: "wanjiku@example.com"},
	}
}

func newTestPostmarkGateway(url string) *PostmarkGateway {
	g := NewPostmarkGateway(EmailConfig{
		ServerToken:  "server-token",
		AccountToken: "account-token",
		From:         "alerts@farm.example",
		BaseURL:      url,
	}, nil)
	g.retry = retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
	return g
}

func TestPostmarkGateway_SendEmail_Success(t *testing.T) {
	var got map[string]any
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Postmark-Server-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"To":"wanjiku@example.com","MessageID":"pm-42","ErrorCode":0,"Message":"OK"}`))
	}))
	defer srv.Close()

	id, err := newTestPostmarkGateway(srv.URL).SendEmail(context.Background(), "m1", emailPayload())

	require.NoError(t, err)
	assert.Equal(t, "pm-42", id)
	assert.Equal(t, "server-token", token)
	assert.Equal(t, "alerts@farm.example", got["From"])
	assert.Equal(t, "wanjiku@example.com", got["To"])
	assert.Equal(t, "Vaccination due for Daisy", got["Subject"])
	assert.Equal(t, "vaccination_reminder", got["Tag"])
	assert.Contains(t, got["HtmlBody"], "<p>Book the vet.</p>")
	assert.Equal(t, map[string]any{"message_id": "m1", "event_id": "ev-9"}, got["Metadata"])
}

func TestPostmarkGateway_SendEmail_InactiveRecipient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ErrorCode":406,"Message":"You tried to send to a recipient that has been marked as inactive."}`))
	}))
	defer srv.Close()

	_, err := newTestPostmarkGateway(srv.URL).SendEmail(context.Background(), "m1", emailPayload())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostmarkGateway_Validation(t *testing.T) {
	g := NewPostmarkGateway(EmailConfig{ServerToken: "x"}, nil)
	assert.False(t, g.Configured())
	_, err := g.SendEmail(context.Background(), "m1", emailPayload())
	assert.ErrorIs(t, err, ErrNotConfigured)

	p := emailPayload()
	p.Recipient.Email = "not-an-address"
	_, err = newTestPostmarkGateway("http://127.0.0.1:1").SendEmail(context.Background(), "m1", p)
	assert.Equal(t, "invalid_email", ErrorCode(err))
}
