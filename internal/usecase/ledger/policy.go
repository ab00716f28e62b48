package ledger

import (
	"fmt"
	"time"
)

// maxBackoffShift caps the exponent so the delay never overflows time.Duration.
const maxBackoffShift = 20

// RetryPolicy bounds store-and-forward retries.
type RetryPolicy struct {
	// Base is the delay before the second send.
	Base time.Duration
	// MaxRetries is the total number of sends allowed for one message id.
	MaxRetries int
}

// DefaultRetryPolicy returns the production defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 30 * time.Second, MaxRetries: 3}
}

// BackoffDelay returns Base * 2^(attempt-1). Attempts below 1 are treated as 1.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return p.Base * time.Duration(1<<shift)
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.Base <= 0 {
		return fmt.Errorf("retry base must be positive, got %v", p.Base)
	}
	if p.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", p.MaxRetries)
	}
	return nil
}
