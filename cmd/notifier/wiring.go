package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"farm-notify/internal/config"
	hhttp "farm-notify/internal/handler/http"
	"farm-notify/internal/infra/adapter/persistence/memory"
	pgRepo "farm-notify/internal/infra/adapter/persistence/postgres"
	redisRepo "farm-notify/internal/infra/adapter/persistence/redis"
	"farm-notify/internal/infra/db"
	"farm-notify/internal/infra/gateway"
	"farm-notify/internal/infra/opsalert"
	ws "farm-notify/internal/infra/websocket"
	"farm-notify/internal/observability/metrics"
	"farm-notify/internal/repository"
	"farm-notify/internal/resilience/circuitbreaker"
	"farm-notify/internal/usecase/ledger"
	"farm-notify/internal/usecase/notify"
	"farm-notify/internal/usecase/reconcile"
)

// store is the selected ledger backend.
type store struct {
	attempts repository.DeliveryAttemptRepository
	archive  repository.WebhookEventRepository
	checks   map[string]hhttp.Check

	sqlDB *sql.DB
	redis *goredis.Client
}

func (s *store) Close(logger *slog.Logger) {
	if s.sqlDB != nil {
		if err := s.sqlDB.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Error("failed to close redis", slog.Any("error", err))
		}
	}
}

// redisPinger adapts the redis client to hhttp.Pinger.
type redisPinger struct{ client *goredis.Client }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// openStore connects the configured ledger backend. The webhook archive
// lives in postgres with that backend and in process memory otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		database, err := db.Open(ctx, cfg.Ledger.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateUp(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate ledger schema: %w", err)
		}
		guarded := circuitbreaker.NewDB(metrics.NewTimedDB(database))
		return &store{
			attempts: pgRepo.NewDeliveryAttemptRepo(guarded),
			archive:  pgRepo.NewWebhookEventRepo(guarded),
			checks:   map[string]hhttp.Check{"database": hhttp.PingCheck(database)},
			sqlDB:    database,
		}, nil

	case config.BackendRedis:
		client, err := redisRepo.Connect(ctx, cfg.Ledger.RedisURL, 5, 2*time.Second)
		if err != nil {
			return nil, err
		}
		logger.Warn("webhook archive is kept in memory with the redis backend")
		return &store{
			attempts: redisRepo.NewDeliveryAttemptRepo(client, cfg.Ledger.RedisPrefix),
			archive:  memory.NewWebhookEventRepo(),
			checks:   map[string]hhttp.Check{"redis": hhttp.PingCheck(redisPinger{client})},
			redis:    client,
		}, nil

	default:
		logger.Warn("ledger backend is in memory, entries are lost on restart")
		return &store{
			attempts: memory.NewDeliveryAttemptRepo(),
			archive:  memory.NewWebhookEventRepo(),
			checks:   map[string]hhttp.Check{},
		}, nil
	}
}

type app struct {
	ledger    *ledger.Ledger
	scheduler *reconcile.RetryScheduler
	hub       *ws.Hub
	service   notify.Service
	handler   http.Handler
	alerter   opsalert.Alerter
	logger    *slog.Logger

	// objectivesBreached is flipped by the ledger_stats job so an alert
	// fires once per breach.
	objectivesBreached atomic.Bool
}

func buildApp(cfg *config.Config, st *store, logger *slog.Logger) (*app, error) {
	l := ledger.New(st.attempts, cfg.RetryPolicy(), ledger.WithLogger(logger))
	scheduler := reconcile.NewRetryScheduler(reconcile.WithSchedulerLogger(logger))
	reconciler := reconcile.NewReconciler(l, st.archive, scheduler, logger)
	hub := ws.NewHub(cfg.HubConfig(), logger)

	renderer := notify.NewRenderer()
	if cfg.Delivery.TemplatesFile != "" {
		r, err := notify.LoadTemplates(cfg.Delivery.TemplatesFile)
		if err != nil {
			return nil, err
		}
		renderer = r
	}

	var (
		sms   notify.SMSGateway
		email notify.EmailGateway
	)
	if cfg.Delivery.DryRun {
		logger.Warn("NOTIFY_DRY_RUN enabled, SMS and email are logged instead of sent")
		dry := gateway.NewDryRunGateway(logger)
		sms, email = dry, dry
	} else {
		sms = gateway.NewSMSGateway(cfg.SMS, logger)
		email = gateway.NewPostmarkGateway(cfg.Email, logger)
	}

	providers := []notify.ChannelProvider{
		notify.NewPushProvider(hub, logger),
		notify.NewSMSProvider(sms, logger),
		notify.NewEmailProvider(email, logger),
	}
	svc := notify.NewService(l, renderer, scheduler, providers, cfg.NotifyConfig(), notify.WithLogger(logger))

	checks := make(map[string]hhttp.Check, len(st.checks)+1)
	for name, c := range st.checks {
		checks[name] = c
	}
	checks["channels"] = hhttp.ChannelsCheck(svc)

	handler := hhttp.NewRouter(hhttp.RouterConfig{
		Logger:         logger,
		Service:        svc,
		Ledger:         l,
		Scheduler:      scheduler,
		Reconciler:     reconciler,
		Hub:            hub,
		LiveEnabled:    cfg.Live.Enabled,
		JWTSecret:      []byte(cfg.JWTSecret),
		WebhookSecret:  []byte(cfg.WebhookSecret),
		Version:        cfg.Version,
		Checks:         checks,
		RateLimit:      cfg.HTTP.RateLimit,
		RateBurst:      cfg.HTTP.RateBurst,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Swagger:        cfg.HTTP.Swagger,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
	})

	return &app{
		ledger:    l,
		scheduler: scheduler,
		hub:       hub,
		service:   svc,
		handler:   handler,
		alerter:   opsalert.New(cfg.OpsAlert.SlackWebhookURL, cfg.OpsAlert.Timeout, logger),
		logger:    logger,
	}, nil
}

// startRetries re-arms retries persisted by a previous run and starts the
// scheduler loop.
func (a *app) startRetries(ctx context.Context) error {
	pending, err := a.ledger.PendingRetries(ctx)
	if err != nil {
		return err
	}
	for _, attempt := range pending {
		a.scheduler.Schedule(attempt.MessageID, *attempt.NextRetryAt)
	}
	if len(pending) > 0 {
		a.logger.Info("pending retries restored", slog.Int("count", len(pending)))
	}
	return a.scheduler.Start(ctx, a.service.Resend)
}
