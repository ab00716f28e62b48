package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"farm-notify/internal/resilience/retry"
)

// ErrNotConfigured is returned by a gateway whose credentials are missing.
var ErrNotConfigured = errors.New("gateway not configured")

// Gateway error types shared by the SMS and email gateways. Each one unwraps
// to a retry.HTTPError so retry.IsRetryable can classify it.

// RateLimitError represents a 429 rate limit response.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string // Optional custom message
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// RetryDelay lets retry.WithBackoff wait as long as the provider asked.
func (e *RateLimitError) RetryDelay() time.Duration { return e.RetryAfter }

func (e *RateLimitError) Unwrap() error {
	return &retry.HTTPError{StatusCode: http.StatusTooManyRequests, Message: e.Error()}
}

// ClientError represents a 4xx response or a rejected recipient. Not retryable.
type ClientError struct {
	StatusCode int
	Code       string // provider specific code, if any
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return &retry.HTTPError{StatusCode: e.StatusCode, Message: e.Message}
}

// ServerError represents a 5xx response.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

func (e *ServerError) Unwrap() error {
	return &retry.HTTPError{StatusCode: e.StatusCode, Message: e.Message}
}

// ErrorCode returns a short provider-facing code for err, used as the
// ProviderError code in delivery results.
func ErrorCode(err error) string {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return "rate_limited"
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		if clientErr.Code != "" {
			return clientErr.Code
		}
		return fmt.Sprintf("http_%d", clientErr.StatusCode)
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return fmt.Sprintf("http_%d", serverErr.StatusCode)
	}
	if errors.Is(err, ErrNotConfigured) {
		return "not_configured"
	}
	return "transport"
}

// ClassifyStatus turns a non-2xx HTTP response from provider into a typed
// error.
func ClassifyStatus(provider string, statusCode int, body []byte, retryAfter time.Duration) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    provider + " rate limit exceeded",
			RetryAfter: retryAfter,
		}
	case statusCode >= 400 && statusCode < 500:
		return &ClientError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("%s client error: %s", provider, truncate(string(body), maxErrorBody)),
		}
	case statusCode >= 500:
		return &ServerError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("%s server error: %s", provider, truncate(string(body), maxErrorBody)),
		}
	}
	return fmt.Errorf("%s: unexpected status code %d", provider, statusCode)
}

const maxErrorBody = 512

// truncate shortens text to maxLength bytes, appending "..." when cut.
func truncate(text string, maxLength int) string {
	const suffix = "..."
	if len(text) <= maxLength {
		return text
	}
	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + suffix
}
