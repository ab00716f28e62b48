// Package delivery exposes the delivery ledger for support staff and
// backend services.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/handler/http/pathutil"
	"farm-notify/internal/handler/http/respond"
	"farm-notify/internal/observability/logging"
	"farm-notify/internal/usecase/notify"
)

// Ledger is the read side of the delivery ledger.
type Ledger interface {
	Get(ctx context.Context, messageID string) (*entity.DeliveryAttempt, error)
	Statistics(ctx context.Context) (map[entity.DeliveryStatus]int, error)
}

// Resender sends a failed entry again.
type Resender interface {
	Resend(ctx context.Context, messageID string) error
}

// Canceler drops a scheduled retry.
type Canceler interface {
	Cancel(messageID string)
}

// StatsResponse is the body of GET /deliveries/stats.
type StatsResponse struct {
	Counts map[entity.DeliveryStatus]int `json:"counts"`
	Total  int                           `json:"total"`
}

// DTO is one ledger entry. The rendered payload is omitted since it
// carries the recipient's contact data.
type DTO struct {
	MessageID   string                `json:"messageId"`
	EventID     string                `json:"eventId"`
	Channel     entity.Channel        `json:"channel"`
	Status      entity.DeliveryStatus `json:"status"`
	Attempts    int                   `json:"attempts"`
	Category    entity.Category       `json:"category"`
	UserID      int64                 `json:"userId"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
	NextRetryAt *time.Time            `json:"nextRetryAt,omitempty"`
	LastError   string                `json:"lastError,omitempty"`
}

func toDTO(a *entity.DeliveryAttempt) DTO {
	return DTO{
		MessageID:   a.MessageID,
		EventID:     a.EventID,
		Channel:     a.Channel,
		Status:      a.Status,
		Attempts:    a.Attempts,
		Category:    a.Payload.Category,
		UserID:      a.Payload.Recipient.UserID,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		NextRetryAt: a.NextRetryAt,
		LastError:   a.LastError,
	}
}

type StatsHandler struct{ Ledger Ledger }

// ServeHTTP 配信統計
// @Summary      配信統計
// @Description  台帳のステータス別件数を返します
// @Tags         deliveries
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} StatsResponse
// @Failure      401 {string} string "Authentication required"
// @Failure      500 {string} string "サーバーエラー"
// @Router       /deliveries/stats [get]
func (h StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Ledger.Statistics(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	respond.JSON(w, http.StatusOK, StatsResponse{Counts: counts, Total: total})
}

type GetHandler struct{ Ledger Ledger }

// ServeHTTP 配信状況取得
// @Summary      配信状況取得
// @Description  messageId の台帳エントリを返します
// @Tags         deliveries
// @Security     BearerAuth
// @Produce      json
// @Param        messageId path string true "メッセージID"
// @Success      200 {object} DTO
// @Failure      400 {string} string "Bad request - invalid message id"
// @Failure      404 {string} string "Not found"
// @Router       /deliveries/{messageId} [get]
func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.MessageID(r.PathValue("messageId"))
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		respond.SafeError(w, respond.StatusFor(err), err)
		return
	}
	respond.JSON(w, http.StatusOK, toDTO(a))
}

// ResendHandler lets an operator push a failed entry out now instead of
// waiting for its scheduled retry.
type ResendHandler struct {
	Ledger    Ledger
	Svc       Resender
	Scheduler Canceler
	Logger    *slog.Logger
}

// ServeHTTP 手動再送
// @Summary      手動再送
// @Description  再送待ちのエントリを即時に再送します
// @Tags         deliveries
// @Security     BearerAuth
// @Produce      json
// @Param        messageId path string true "メッセージID"
// @Success      200 {object} DTO
// @Failure      404 {string} string "Not found"
// @Failure      409 {string} string "再送待ちではない"
// @Failure      502 {object} DTO "再送失敗"
// @Failure      503 {string} string "停止処理中"
// @Router       /deliveries/{messageId}/resend [post]
func (h ResendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.MessageID(r.PathValue("messageId"))
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	log := logging.WithRequestID(r.Context(), h.Logger).With(slog.String("message_id", id))

	sendErr := h.Svc.Resend(r.Context(), id)
	switch {
	case errors.Is(sendErr, notify.ErrShuttingDown):
		respond.SafeError(w, http.StatusServiceUnavailable, sendErr)
		return
	case errors.Is(sendErr, entity.ErrUnknownMessage), errors.Is(sendErr, entity.ErrInvalidTransition):
		respond.SafeError(w, respond.StatusFor(sendErr), sendErr)
		return
	}
	a, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		respond.SafeError(w, respond.StatusFor(err), err)
		return
	}
	code := http.StatusOK
	if sendErr != nil {
		code = http.StatusBadGateway
		log.Warn("manual resend failed", slog.String("error", respond.SanitizeError(sendErr)))
	} else {
		// 失敗時は新しい再送予定で上書き済み、成功時は古い予定だけが残る
		if h.Scheduler != nil {
			h.Scheduler.Cancel(id)
		}
		log.Info("manual resend sent")
	}
	respond.JSON(w, code, toDTO(a))
}

// Register mounts the ledger routes. svc and scheduler may be nil to
// leave out the resend route.
func Register(mux *http.ServeMux, l Ledger, svc Resender, scheduler Canceler, logger *slog.Logger) {
	mux.Handle("GET /deliveries/stats", StatsHandler{Ledger: l})
	mux.Handle("GET /deliveries/{messageId}", GetHandler{Ledger: l})
	if svc != nil {
		mux.Handle("POST /deliveries/{messageId}/resend", ResendHandler{Ledger: l, Svc: svc, Scheduler: scheduler, Logger: logger})
	}
}
