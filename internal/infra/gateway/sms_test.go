package gateway

import (
	"context"
	"errors"
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

/* ─── ヘルパ ─── */

func smsPayload(phone string) entity.DeliveryPayload {
	return entity.DeliveryPayload{
		EventID:   "ev-1",
		Category:  entity.CategoryStockAlert,
		Title:     "Low stock",
		Body:      "Dairy meal below 3 bags",
		Recipient: entity.Recipient{UserID: 7, Phone: phone},
	}
}

func newTestSMSGateway(url string) *SMSGateway {
	g := NewSMSGateway(SMSConfig{
		URL:       url,
		APIKey:    "key-123",
		Username:  "farmapp",
		SenderID:  "FARM",
		RateLimit: 100,
		Timeout:   time.Second,
	}, nil)
	g.retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	return g
}

const acceptedBody = `{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"statusCode":101,"number":"+254712345678","status":"Success","messageId":"ATXid_1"}]}}`

/* ─── テスト ─── */

func TestSMSGateway_SendSMS_Success(t *testing.T) {
	var gotForm map[string]string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotKey = r.Header.Get("apiKey")
		gotForm = map[string]string{
			"to":       r.PostForm.Get("to"),
			"message":  r.PostForm.Get("message"),
			"from":     r.PostForm.Get("from"),
			"username": r.PostForm.Get("username"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(acceptedBody))
	}))
	defer srv.Close()

	g := newTestSMSGateway(srv.URL)

	id, err := g.SendSMS(context.Background(), "m1", smsPayload("+254712345678"))

	require.NoError(t, err)
	assert.Equal(t, "ATXid_1", id)
	assert.Equal(t, "key-123", gotKey)
	assert.Equal(t, map[string]string{
		"to":       "+254712345678",
		"message":  "Dairy meal below 3 bags",
		"from":     "FARM",
		"username": "farmapp",
	}, gotForm)
}

func TestSMSGateway_SendSMS_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(acceptedBody))
	}))
	defer srv.Close()

	id, err := newTestSMSGateway(srv.URL).SendSMS(context.Background(), "m1", smsPayload("+254712345678"))

	require.NoError(t, err)
	assert.Equal(t, "ATXid_1", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSMSGateway_SendSMS_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	_, err := newTestSMSGateway(srv.URL).SendSMS(context.Background(), "m1", smsPayload("+254712345678"))

	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, http.StatusUnauthorized, clientErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSMSGateway_SendSMS_RecipientRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Message":"Sent to 0/1","Recipients":[{"statusCode":406,"number":"+254712345678","status":"User In Blacklist"}]}}`))
	}))
	defer srv.Close()

	_, err := newTestSMSGateway(srv.URL).SendSMS(context.Background(), "m1", smsPayload("+254712345678"))

	assert.Equal(t, "user_in_blacklist", ErrorCode(err))
	assert.False(t, retry.IsRetryable(err))
}

func TestSMSGateway_SendSMS_Validation(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		g := NewSMSGateway(SMSConfig{}, nil)
		assert.False(t, g.Configured())
		_, err := g.SendSMS(context.Background(), "m1", smsPayload("+254712345678"))
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("invalid phone never reaches the gateway", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		_, err := newTestSMSGateway(srv.URL).SendSMS(context.Background(), "m1", smsPayload("0712345678"))

		assert.Equal(t, "invalid_phone", ErrorCode(err))
		assert.Zero(t, calls.Load())
	})
}
