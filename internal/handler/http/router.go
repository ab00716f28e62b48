package http

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"farm-notify/internal/handler/http/auth"
	"farm-notify/internal/handler/http/delivery"
	"farm-notify/internal/handler/http/live"
	"farm-notify/internal/handler/http/notification"
	"farm-notify/internal/handler/http/requestid"
	"farm-notify/internal/handler/http/webhook"
	"farm-notify/internal/observability/tracing"
	"farm-notify/internal/usecase/notify"
)

// RouterConfig collects what the API routes need.
type RouterConfig struct {
	Logger *slog.Logger

	Service    notify.Service
	Ledger     delivery.Ledger
	Scheduler  delivery.Canceler
	Reconciler webhook.EventProcessor
	Hub        live.Server

	LiveEnabled   bool
	JWTSecret     []byte
	WebhookSecret []byte

	Version string
	Checks  map[string]Check

	// CORSOrigins enables cross-origin access for the listed origins.
	CORSOrigins []string

	// RateLimit is requests per second per IP; 0 disables limiting.
	RateLimit      float64
	RateBurst      int
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	Swagger        bool
}

// NewRouter builds the API handler.
// Middleware order: Request ID -> Tracing -> Recover -> Logging -> Metrics
// -> CORS -> Rate limit -> Body limit -> Authz -> routes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	// /live は接続中ずっとハンドラ内に留まるのでタイムアウトを掛けない
	api := http.NewServeMux()
	notification.Register(api, cfg.Service, logger)
	delivery.Register(api, cfg.Ledger, cfg.Service, cfg.Scheduler, logger)
	webhook.Register(api, webhook.Handler{
		Processor: cfg.Reconciler,
		Secret:    cfg.WebhookSecret,
		Logger:    logger,
	})
	api.Handle("GET /health", &HealthHandler{Checks: cfg.Checks, Version: cfg.Version, Logger: logger})
	api.Handle("GET /health/channels", ChannelsHandler{Svc: cfg.Service})
	api.Handle("GET /metrics", MetricsHandler())
	if cfg.Swagger {
		api.Handle("GET /swagger/", httpSwagger.WrapHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/", Timeout(cfg.RequestTimeout)(api))
	if cfg.Hub != nil {
		live.Register(mux, cfg.Hub, cfg.LiveEnabled)
	}

	mws := []Middleware{
		requestid.Middleware,
		tracing.Middleware,
		Recover(logger),
		Logging(logger),
		MetricsMiddleware,
	}
	if len(cfg.CORSOrigins) > 0 {
		mws = append(mws, CORS(DefaultCORSConfig(cfg.CORSOrigins), logger))
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Limit)
	}
	mws = append(mws,
		LimitRequestBody(cfg.MaxBodyBytes),
		auth.Authz(cfg.JWTSecret, logger),
	)
	return Chain(mux, mws...)
}
