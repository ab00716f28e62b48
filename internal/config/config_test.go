package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_ADDR", "METRICS_ADDR", "LOG_LEVEL", "APP_VERSION", "JWT_SECRET", "WEBHOOK_SIGNING_SECRET",
		"LIVE_CHANNEL_ENABLED", "LIVE_URL", "CONNECT_TIMEOUT", "HEARTBEAT_INTERVAL", "RECONNECT_BASE_DELAY",
		"MAX_RECONNECT_ATTEMPTS", "LIVE_ALLOWED_ORIGINS", "RETRY_BASE_DELAY", "MAX_DELIVERY_RETRIES",
		"NOTIFY_MAX_CONCURRENT", "NOTIFY_SEND_TIMEOUT", "NOTIFY_TEMPLATES_FILE", "NOTIFY_DRY_RUN",
		"LEDGER_BACKEND", "DATABASE_URL", "REDIS_URL", "REDIS_KEY_PREFIX", "SWEEP_SCHEDULE", "SWEEP_RETENTION",
		"HTTP_RATE_LIMIT", "HTTP_RATE_BURST", "HTTP_MAX_BODY_BYTES", "HTTP_REQUEST_TIMEOUT", "SWAGGER_ENABLED", "CORS_ALLOWED_ORIGINS",
		"SMS_GATEWAY_URL", "SMS_API_KEY", "SMS_USERNAME", "SMS_SENDER_ID", "SMS_RATE_LIMIT",
		"POSTMARK_SERVER_TOKEN", "POSTMARK_ACCOUNT_TOKEN", "EMAIL_FROM", "TRACE_SAMPLE_RATIO",
		"OPS_SLACK_WEBHOOK_URL", "OPS_ALERT_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, warnings, err := Load()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.True(t, cfg.Live.Enabled)
	assert.Equal(t, 5, cfg.Live.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.Live.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Delivery.RetryBase)
	assert.Equal(t, 3, cfg.Delivery.MaxRetries)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, "0 3 * * *", cfg.Ledger.SweepSchedule)
	assert.False(t, cfg.SMS.Configured())
	assert.False(t, cfg.Email.Configured())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIVE_CHANNEL_ENABLED", "false")
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "8")
	t.Setenv("RETRY_BASE_DELAY", "1m")
	t.Setenv("MAX_DELIVERY_RETRIES", "5")
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://:pw@localhost:6379/0")
	t.Setenv("SMS_GATEWAY_URL", "https://api.sandbox.africastalking.com/version1/messaging")
	t.Setenv("SMS_API_KEY", "atsk_test")
	t.Setenv("LIVE_ALLOWED_ORIGINS", "https://farm.example,https://ops.example")

	cfg, warnings, err := Load()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.False(t, cfg.Live.Enabled)
	assert.Equal(t, 8, cfg.ConnectionConfig().MaxReconnectAttempts)
	assert.Equal(t, time.Minute, cfg.RetryPolicy().Base)
	assert.Equal(t, 5, cfg.RetryPolicy().MaxRetries)
	assert.Equal(t, BackendRedis, cfg.Ledger.Backend)
	assert.True(t, cfg.SMS.Configured())
	assert.Equal(t, []string{"https://farm.example", "https://ops.example"}, cfg.HubConfig().AllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "50")
	t.Setenv("MAX_DELIVERY_RETRIES", "zero")
	t.Setenv("SWEEP_SCHEDULE", "nightly")
	t.Setenv("LEDGER_BACKEND", "sqlite")
	t.Setenv("LIVE_URL", "http://localhost:8080/live")
	t.Setenv("OPS_SLACK_WEBHOOK_URL", "hooks.slack.com/services/x")

	cfg, warnings, err := Load()

	require.NoError(t, err)
	assert.Len(t, warnings, 6)
	assert.Empty(t, cfg.OpsAlert.SlackWebhookURL)
	assert.Equal(t, 5, cfg.Live.MaxReconnectAttempts)
	assert.Equal(t, 3, cfg.Delivery.MaxRetries)
	assert.Equal(t, "0 3 * * *", cfg.Ledger.SweepSchedule)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, "ws://localhost:8080/live", cfg.Live.URL)
}

func TestLoad_BackendRequiresURL(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{BackendPostgres, "DATABASE_URL"},
		{BackendRedis, "REDIS_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("LEDGER_BACKEND", tt.backend)

			_, _, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FN_DOTENV_SENDER=FARMOPS\nHTTP_ADDR=:7070\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":9999")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { _ = os.Unsetenv("FN_DOTENV_SENDER") })

	assert.Equal(t, "FARMOPS", os.Getenv("FN_DOTENV_SENDER"))
	assert.Equal(t, ":9999", os.Getenv("HTTP_ADDR"))
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
