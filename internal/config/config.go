// Package config assembles the notifier configuration from the environment.
// Values are loaded fail-open: a malformed variable falls back to its
// default with a warning, and only combinations that cannot run are errors.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"farm-notify/internal/infra/gateway"
	ws "farm-notify/internal/infra/websocket"
	pkgconfig "farm-notify/internal/pkg/config"
	"farm-notify/internal/usecase/connection"
	"farm-notify/internal/usecase/ledger"
	"farm-notify/internal/usecase/notify"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var metrics = pkgconfig.NewConfigMetrics("notifier")

// Config is the full notifier configuration.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string
	Version     string

	// JWTSecret signs API and /live tokens. Required by the server only.
	JWTSecret string
	// WebhookSecret enables HMAC verification of gateway callbacks.
	WebhookSecret string

	Live     LiveConfig
	Delivery DeliveryConfig
	Ledger   LedgerConfig
	HTTP     HTTPConfig

	SMS   gateway.SMSConfig
	Email gateway.EmailConfig

	OpsAlert OpsAlertConfig

	// TraceSampleRatio is the share of root spans sampled.
	TraceSampleRatio float64
}

// LiveConfig covers both ends of the live channel.
type LiveConfig struct {
	Enabled              bool
	URL                  string
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
	AllowedOrigins       []string
}

// DeliveryConfig tunes the dispatcher and its retry policy.
type DeliveryConfig struct {
	RetryBase     time.Duration
	MaxRetries    int
	MaxConcurrent int
	SendTimeout   time.Duration
	// TemplatesFile replaces the built-in templates when set.
	TemplatesFile string
	// DryRun logs SMS and email sends instead of calling the gateways.
	DryRun bool
}

type LedgerConfig struct {
	Backend        string
	DatabaseURL    string
	RedisURL       string
	RedisPrefix    string
	SweepSchedule  string
	SweepRetention time.Duration
}

type HTTPConfig struct {
	RateLimit      float64
	RateBurst      int
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	Swagger        bool
	CORSOrigins    []string
}

// OpsAlertConfig points objective breach alerts at a Slack webhook.
type OpsAlertConfig struct {
	SlackWebhookURL string
	Timeout         time.Duration
}

// LoadDotEnv loads path into the environment when it exists. Variables
// already set win over the file.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the environment. The returned warnings describe every value
// that was rejected and replaced by its default.
func Load() (*Config, []string, error) {
	l := pkgconfig.NewLoader(metrics)

	cfg := &Config{
		HTTPAddr:      pkgconfig.LoadEnvString("HTTP_ADDR", ":8080"),
		MetricsAddr:   pkgconfig.LoadEnvString("METRICS_ADDR", ":9091"),
		LogLevel:      l.String("LOG_LEVEL", "info", pkgconfig.OneOf("debug", "info", "warn", "error")),
		Version:       pkgconfig.LoadEnvString("APP_VERSION", "dev"),
		JWTSecret:     pkgconfig.LoadEnvString("JWT_SECRET", ""),
		WebhookSecret: pkgconfig.LoadEnvString("WEBHOOK_SIGNING_SECRET", ""),
		Live: LiveConfig{
			Enabled:              l.Bool("LIVE_CHANNEL_ENABLED", true),
			URL:                  l.String("LIVE_URL", "ws://localhost:8080/live", pkgconfig.URLWithScheme("ws", "wss")),
			ConnectTimeout:       l.Duration("CONNECT_TIMEOUT", 10*time.Second, pkgconfig.DurationRange(time.Second, 2*time.Minute)),
			HeartbeatInterval:    l.Duration("HEARTBEAT_INTERVAL", 30*time.Second, pkgconfig.DurationRange(time.Second, 10*time.Minute)),
			ReconnectBase:        l.Duration("RECONNECT_BASE_DELAY", 2*time.Second, pkgconfig.DurationRange(100*time.Millisecond, time.Minute)),
			MaxReconnectAttempts: l.Int("MAX_RECONNECT_ATTEMPTS", 5, pkgconfig.IntRange(1, 20)),
			AllowedOrigins:       pkgconfig.LoadEnvList("LIVE_ALLOWED_ORIGINS", nil),
		},
		Delivery: DeliveryConfig{
			RetryBase:     l.Duration("RETRY_BASE_DELAY", 30*time.Second, pkgconfig.DurationRange(time.Second, time.Hour)),
			MaxRetries:    l.Int("MAX_DELIVERY_RETRIES", 3, pkgconfig.IntRange(1, 10)),
			MaxConcurrent: l.Int("NOTIFY_MAX_CONCURRENT", 10, pkgconfig.IntRange(1, 200)),
			SendTimeout:   l.Duration("NOTIFY_SEND_TIMEOUT", 15*time.Second, pkgconfig.DurationRange(time.Second, 2*time.Minute)),
			TemplatesFile: pkgconfig.LoadEnvString("NOTIFY_TEMPLATES_FILE", ""),
			DryRun:        l.Bool("NOTIFY_DRY_RUN", false),
		},
		Ledger: LedgerConfig{
			Backend:        l.String("LEDGER_BACKEND", BackendMemory, pkgconfig.OneOf(BackendMemory, BackendPostgres, BackendRedis)),
			DatabaseURL:    pkgconfig.LoadEnvString("DATABASE_URL", ""),
			RedisURL:       pkgconfig.LoadEnvString("REDIS_URL", ""),
			RedisPrefix:    pkgconfig.LoadEnvString("REDIS_KEY_PREFIX", "farm-notify"),
			SweepSchedule:  l.String("SWEEP_SCHEDULE", "0 3 * * *", pkgconfig.ValidateCronSchedule),
			SweepRetention: l.Duration("SWEEP_RETENTION", 720*time.Hour, pkgconfig.DurationRange(time.Hour, 24*365*time.Hour)),
		},
		HTTP: HTTPConfig{
			RateLimit:      l.Float("HTTP_RATE_LIMIT", 20, nil),
			RateBurst:      l.Int("HTTP_RATE_BURST", 40, pkgconfig.IntRange(1, 10000)),
			MaxBodyBytes:   int64(l.Int("HTTP_MAX_BODY_BYTES", 1<<20, pkgconfig.IntRange(1<<10, 16<<20))),
			RequestTimeout: l.Duration("HTTP_REQUEST_TIMEOUT", 30*time.Second, pkgconfig.ValidatePositiveDuration),
			Swagger:        l.Bool("SWAGGER_ENABLED", true),
			CORSOrigins:    pkgconfig.LoadEnvList("CORS_ALLOWED_ORIGINS", nil),
		},
		SMS: gateway.SMSConfig{
			URL:       pkgconfig.LoadEnvString("SMS_GATEWAY_URL", ""),
			APIKey:    pkgconfig.LoadEnvString("SMS_API_KEY", ""),
			Username:  pkgconfig.LoadEnvString("SMS_USERNAME", ""),
			SenderID:  pkgconfig.LoadEnvString("SMS_SENDER_ID", ""),
			RateLimit: l.Float("SMS_RATE_LIMIT", 5, pkgconfig.ValidatePositiveFloat),
		},
		Email: gateway.EmailConfig{
			ServerToken:  pkgconfig.LoadEnvString("POSTMARK_SERVER_TOKEN", ""),
			AccountToken: pkgconfig.LoadEnvString("POSTMARK_ACCOUNT_TOKEN", ""),
			From:         pkgconfig.LoadEnvString("EMAIL_FROM", ""),
		},
		OpsAlert: OpsAlertConfig{
			SlackWebhookURL: l.String("OPS_SLACK_WEBHOOK_URL", "", pkgconfig.URLWithScheme("https")),
			Timeout:         l.Duration("OPS_ALERT_TIMEOUT", 10*time.Second, pkgconfig.DurationRange(time.Second, time.Minute)),
		},
		TraceSampleRatio: l.Float("TRACE_SAMPLE_RATIO", 0.1, pkgconfig.ValidateRatio),
	}

	warnings := l.Warnings()
	if err := cfg.Validate(); err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// Validate rejects combinations the notifier cannot start with.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendPostgres:
		if c.Ledger.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when LEDGER_BACKEND=postgres")
		}
	case BackendRedis:
		if c.Ledger.RedisURL == "" {
			return errors.New("REDIS_URL is required when LEDGER_BACKEND=redis")
		}
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("retry policy: %w", err)
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New("HTTP_RATE_LIMIT cannot be negative")
	}
	return nil
}

// RetryPolicy returns the ledger retry bounds.
func (c *Config) RetryPolicy() ledger.RetryPolicy {
	return ledger.RetryPolicy{Base: c.Delivery.RetryBase, MaxRetries: c.Delivery.MaxRetries}
}

// NotifyConfig returns the dispatcher settings.
func (c *Config) NotifyConfig() notify.Config {
	return notify.Config{
		MaxConcurrent: c.Delivery.MaxConcurrent,
		SendTimeout:   c.Delivery.SendTimeout,
	}
}

// ConnectionConfig returns the client-side live channel settings.
func (c *Config) ConnectionConfig() connection.Config {
	cc := connection.DefaultConfig()
	cc.Enabled = c.Live.Enabled
	cc.URL = c.Live.URL
	cc.ConnectTimeout = c.Live.ConnectTimeout
	cc.HeartbeatInterval = c.Live.HeartbeatInterval
	cc.ReconnectBase = c.Live.ReconnectBase
	cc.MaxReconnectAttempts = c.Live.MaxReconnectAttempts
	return cc
}

// HubConfig returns the server-side live channel settings.
func (c *Config) HubConfig() ws.HubConfig {
	hc := ws.DefaultHubConfig()
	hc.PingInterval = c.Live.HeartbeatInterval
	hc.AllowedOrigins = c.Live.AllowedOrigins
	return hc
}
