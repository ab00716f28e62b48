package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"farm-notify/internal/resilience/retry"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
		code      string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true, code: "rate_limited"},
		{name: "bad request", status: http.StatusBadRequest, retryable: false, code: "http_400"},
		{name: "unauthorized", status: http.StatusUnauthorized, retryable: false, code: "http_401"},
		{name: "server error", status: http.StatusInternalServerError, retryable: true, code: "http_500"},
		{name: "bad gateway", status: http.StatusBadGateway, retryable: true, code: "http_502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyStatus("sms gateway", tt.status, []byte("boom"), time.Second)

			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
			assert.Equal(t, tt.code, ErrorCode(err))
			// wrapping keeps the classification
			assert.Equal(t, tt.retryable, retry.IsRetryable(fmt.Errorf("send: %w", err)))
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "invalid_phone", ErrorCode(&ClientError{StatusCode: 400, Code: "invalid_phone"}))
	assert.Equal(t, "not_configured", ErrorCode(fmt.Errorf("x: %w", ErrNotConfigured)))
	assert.Equal(t, "transport", ErrorCode(errors.New("connection reset")))
}

func TestRateLimitError_Message(t *testing.T) {
	err := &RateLimitError{RetryAfter: 3 * time.Second}
	assert.Equal(t, "rate limit exceeded (retry after 3s)", err.Error())

	err.Message = "sms gateway rate limit exceeded"
	assert.Contains(t, err.Error(), "sms gateway")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := strings.Repeat("a", 20)
	got := truncate(long, 10)
	assert.Len(t, got, 10)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "...", truncate(long, 2))
}
