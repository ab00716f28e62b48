// Package http holds the notification API: middleware, health and metrics
// endpoints, and the route table that ties the webhook, dispatch, ledger
// and live handlers together.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"farm-notify/internal/handler/http/respond"
	"farm-notify/internal/usecase/notify"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus is the result of one health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Check probes one dependency.
type Check func(ctx context.Context) CheckStatus

// Pinger is satisfied by *sql.DB and the redis ledger store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingCheck reports unhealthy when p cannot be reached.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) CheckStatus {
		if err := p.PingContext(ctx); err != nil {
			return CheckStatus{Status: statusUnhealthy, Message: respond.SanitizeError(err)}
		}
		return CheckStatus{Status: statusHealthy}
	}
}

// ChannelsCheck reports degraded while any configured gateway has its
// circuit breaker open. Dispatch keeps working on the other channels.
func ChannelsCheck(svc notify.Service) Check {
	return func(context.Context) CheckStatus {
		details := make(map[string]any)
		status := statusHealthy
		for _, ch := range svc.ChannelHealth() {
			details[string(ch.Channel)] = ch.CircuitBreaker
			if ch.Configured && ch.CircuitBreakerOpen {
				status = statusDegraded
			}
		}
		return CheckStatus{Status: status, Details: details}
	}
}

// HealthHandler runs every check and answers 503 if one is unhealthy.
type HealthHandler struct {
	Checks  map[string]Check
	Version string
	Timeout time.Duration
	Logger  *slog.Logger
}

// ServeHTTP ヘルスチェック
// @Summary      ヘルスチェック
// @Description  台帳ストアとチャネルの状態を返します
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]CheckStatus, len(names))
	overall := statusHealthy
	for _, name := range names {
		cs := h.Checks[name](ctx)
		checks[name] = cs
		switch {
		case cs.Status == statusUnhealthy:
			overall = statusUnhealthy
		case cs.Status == statusDegraded && overall == statusHealthy:
			overall = statusDegraded
		}
	}

	code := http.StatusOK
	if overall == statusUnhealthy {
		code = http.StatusServiceUnavailable
		if h.Logger != nil {
			h.Logger.Warn("health check failed", slog.Any("checks", checks))
		}
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, code, HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

// ChannelsHandler serves GET /health/channels.
type ChannelsHandler struct {
	Svc notify.Service
}

// ServeHTTP チャネル状態
// @Summary      チャネル状態
// @Description  各配信チャネルの設定有無とサーキットブレーカ状態を返します
// @Tags         health
// @Produce      json
// @Success      200 {array} notify.ChannelHealthStatus
// @Router       /health/channels [get]
func (h ChannelsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, h.Svc.ChannelHealth())
}
