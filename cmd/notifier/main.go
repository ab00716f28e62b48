package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"farm-notify/internal/config"
	hauth "farm-notify/internal/handler/http/auth"
	"farm-notify/internal/infra/worker"
	"farm-notify/internal/observability/logging"
	"farm-notify/internal/observability/tracing"

	_ "farm-notify/docs" // swagger docs
)

// @title           Farm Notify API
// @version         1.0
// @description     農場運営向け通知配信サービスの REST API
// @description     通知のディスパッチ、配信台帳の参照、ゲートウェイ Webhook の受信を提供します。

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT トークンによる認証。ヘッダーに "Bearer {token}" 形式で指定してください。

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}

	cfg, warnings, err := config.Load()
	logger := initLogger(cfg)
	for _, w := range warnings {
		logger.Warn("configuration fallback applied", slog.String("detail", w))
	}
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := hauth.ValidateSecret(cfg.JWTSecret); err != nil {
		logger.Error("JWT_SECRET rejected", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SIGNING_SECRET not set, gateway callbacks are not authenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("notifier stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}

// initLogger builds the JSON logger and installs it as the default. cfg may
// be nil when loading failed.
func initLogger(cfg *config.Config) *slog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if cfg != nil {
		level = cfg.LogLevel
	}
	logger := logging.New(os.Stdout, level, logging.FormatJSON)
	slog.SetDefault(logger)
	return logger
}

// run wires the service and blocks until ctx is cancelled or a component
// fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing := tracing.Init(cfg.TraceSampleRatio)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(logger)

	app, err := buildApp(cfg, store, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.hub.Run(gctx)
		return nil
	})

	if err := app.startRetries(gctx); err != nil {
		return err
	}
	defer app.scheduler.Stop()

	jobs := worker.NewScheduler(logger)
	for _, job := range app.jobs(cfg, store) {
		if err := jobs.Add(job); err != nil {
			return err
		}
	}
	g.Go(func() error { return jobs.Run(gctx) })

	ops := worker.NewHealthServer(cfg.MetricsAddr, logger)
	g.Go(func() error { return ops.Start(gctx) })

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return gctx
		},
	}
	g.Go(func() error {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("version", cfg.Version),
			slog.String("ledger_backend", cfg.Ledger.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	ops.SetReady(true)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		ops.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", slog.Any("error", err))
		}
		// 送信中の通知は台帳へ結果を書き終えるまで待つ
		if err := app.service.Shutdown(shutdownCtx); err != nil {
			logger.Warn("in-flight sends did not finish", slog.Any("error", err))
		}
		return nil
	})

	return g.Wait()
}
