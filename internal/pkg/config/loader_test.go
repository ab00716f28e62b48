package config

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvString(t *testing.T) {
	assert.Equal(t, "default", LoadEnvString("FN_TEST_STRING", "default"))

	t.Setenv("FN_TEST_STRING", "custom")
	assert.Equal(t, "custom", LoadEnvString("FN_TEST_STRING", "default"))
}

func TestLoadEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		env          string
		want         time.Duration
		wantFallback bool
	}{
		{"unset uses default", "", 30 * time.Second, false},
		{"valid value", "45s", 45 * time.Second, false},
		{"unparseable", "soon", 30 * time.Second, true},
		{"fails validation", "-5s", 30 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FN_TEST_DURATION", tt.env)

			r := LoadEnvDuration("FN_TEST_DURATION", 30*time.Second, ValidatePositiveDuration)

			assert.Equal(t, tt.want, r.Value)
			assert.Equal(t, tt.wantFallback, r.FallbackApplied)
			if tt.wantFallback {
				assert.Contains(t, r.Warning, "Invalid FN_TEST_DURATION='"+tt.env+"'")
				assert.Contains(t, r.Warning, "falling back to default '30s'")
			} else {
				assert.Empty(t, r.Warning)
			}
		})
	}
}

func TestLoadEnvInt(t *testing.T) {
	tests := []struct {
		env          string
		want         int
		wantFallback bool
	}{
		{"", 3, false},
		{"7", 7, false},
		{"7abc", 3, true},
		{"11", 3, true},
		{" 4 ", 4, false},
	}

	for _, tt := range tests {
		t.Setenv("FN_TEST_INT", tt.env)
		r := LoadEnvInt("FN_TEST_INT", 3, IntRange(1, 10))
		assert.Equal(t, tt.want, r.Value, "env %q", tt.env)
		assert.Equal(t, tt.wantFallback, r.FallbackApplied, "env %q", tt.env)
	}
}

func TestLoadEnvFloatAndBool(t *testing.T) {
	t.Setenv("FN_TEST_FLOAT", "2.5")
	assert.InDelta(t, 2.5, LoadEnvFloat("FN_TEST_FLOAT", 5, ValidatePositiveFloat).Value, 1e-9)

	t.Setenv("FN_TEST_FLOAT", "0")
	r := LoadEnvFloat("FN_TEST_FLOAT", 5, ValidatePositiveFloat)
	assert.True(t, r.FallbackApplied)
	assert.InDelta(t, 5.0, r.Value, 1e-9)

	t.Setenv("FN_TEST_BOOL", "false")
	assert.False(t, LoadEnvBool("FN_TEST_BOOL", true).Value)

	t.Setenv("FN_TEST_BOOL", "nope")
	b := LoadEnvBool("FN_TEST_BOOL", true)
	assert.True(t, b.Value)
	assert.True(t, b.FallbackApplied)
}

func TestLoadEnvList(t *testing.T) {
	assert.Equal(t, []string{"a"}, LoadEnvList("FN_TEST_LIST", []string{"a"}))

	t.Setenv("FN_TEST_LIST", "https://farm.example, ,https://ops.example ")
	assert.Equal(t, []string{"https://farm.example", "https://ops.example"}, LoadEnvList("FN_TEST_LIST", nil))
}

func TestLoader_CollectsWarningsAndMetrics(t *testing.T) {
	// Arrange
	reg := prometheus.NewRegistry()
	metrics := newConfigMetrics(promauto.With(reg), "loader_test")
	l := NewLoader(metrics)
	t.Setenv("MAX_DELIVERY_RETRIES", "99")
	t.Setenv("SWEEP_SCHEDULE", "every night")
	t.Setenv("RETRY_BASE_DELAY", "1m")

	// Act
	retries := l.Int("MAX_DELIVERY_RETRIES", 3, IntRange(1, 10))
	schedule := l.String("SWEEP_SCHEDULE", "0 3 * * *", ValidateCronSchedule)
	base := l.Duration("RETRY_BASE_DELAY", 30*time.Second, ValidatePositiveDuration)
	warnings := l.Warnings()

	// Assert
	assert.Equal(t, 3, retries)
	assert.Equal(t, "0 3 * * *", schedule)
	assert.Equal(t, time.Minute, base)
	require.Len(t, warnings, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues("max_delivery_retries")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidationErrorsTotal.WithLabelValues("sweep_schedule")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FallbackActive))
	assert.Greater(t, testutil.ToFloat64(metrics.LoadTimestamp), 0.0)
}

func TestLoader_NilMetrics(t *testing.T) {
	l := NewLoader(nil)
	t.Setenv("FN_TEST_BOOL", "maybe")
	assert.False(t, l.Bool("FN_TEST_BOOL", false))
	assert.Len(t, l.Warnings(), 1)
}
