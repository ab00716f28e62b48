package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateCronSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"0 3 * * *", false},
		{"*/15 * * * *", false},
		{"30 9 * * 1-5", false},
		{"", true},
		{"0 3 * *", true},
		{"61 3 * * *", true},
		{"@every 5m", true},
	}
	for _, tt := range tests {
		err := ValidateCronSchedule(tt.schedule)
		if tt.wantErr {
			assert.Error(t, err, tt.schedule)
		} else {
			assert.NoError(t, err, tt.schedule)
		}
	}
}

func TestRangeValidators(t *testing.T) {
	assert.NoError(t, ValidateIntRange(5, 1, 20))
	assert.ErrorContains(t, ValidateIntRange(0, 1, 20), "below minimum")
	assert.ErrorContains(t, ValidateIntRange(21, 1, 20), "exceeds maximum")
	assert.ErrorContains(t, ValidateIntRange(1, 5, 2), "invalid range")

	assert.NoError(t, DurationRange(time.Second, time.Minute)(10*time.Second))
	assert.Error(t, DurationRange(time.Second, time.Minute)(time.Hour))
	assert.Error(t, ValidatePositiveDuration(0))

	assert.NoError(t, ValidateRatio(0.25))
	assert.Error(t, ValidateRatio(1.5))
}

func TestOneOf(t *testing.T) {
	v := OneOf("memory", "postgres", "redis")
	assert.NoError(t, v("redis"))
	assert.ErrorContains(t, v("sqlite"), "must be one of")
}

func TestURLWithScheme(t *testing.T) {
	ws := URLWithScheme("ws", "wss")
	assert.NoError(t, ws("wss://farm.example/live"))
	assert.Error(t, ws("https://farm.example/live"))
	assert.Error(t, ws("/live"))
}
