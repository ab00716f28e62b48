package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_BackoffDelay(t *testing.T) {
	p := RetryPolicy{Base: 2 * time.Second, MaxRetries: 3}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 8 * time.Second},
		{attempt: 0, want: 2 * time.Second},
		{attempt: -4, want: 2 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.BackoffDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_BackoffStrictlyIncreasing(t *testing.T) {
	for _, base := range []time.Duration{time.Millisecond, time.Second, 30 * time.Second} {
		p := RetryPolicy{Base: base, MaxRetries: 10}
		for a := 1; a <= p.MaxRetries; a++ {
			want := base * time.Duration(1<<(a-1))
			assert.Equal(t, want, p.BackoffDelay(a))
			if a > 1 {
				assert.Greater(t, p.BackoffDelay(a), p.BackoffDelay(a-1))
			}
		}
	}
}

func TestRetryPolicy_BackoffDoesNotOverflow(t *testing.T) {
	p := RetryPolicy{Base: time.Second, MaxRetries: 3}
	assert.Positive(t, p.BackoffDelay(500))
	assert.Equal(t, p.BackoffDelay(maxBackoffShift+1), p.BackoffDelay(500))
}

func TestRetryPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())
	assert.Error(t, RetryPolicy{Base: 0, MaxRetries: 3}.Validate())
	assert.Error(t, RetryPolicy{Base: time.Second, MaxRetries: 0}.Validate())
}
