// Package webhook receives delivery status callbacks from the SMS and
// email gateways.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/handler/http/respond"
	"farm-notify/internal/observability/logging"
	"farm-notify/internal/usecase/reconcile"
)

// maxBodyBytes bounds a callback body; gateway payloads are a few hundred bytes.
const maxBodyBytes = 64 << 10

var (
	errBadSignature = errors.New("invalid webhook signature")
	errBadBody      = errors.New("invalid webhook body")
)

// EventProcessor applies a callback to the ledger.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev entity.WebhookEvent) reconcile.Result
}

// Request is the callback body.
type Request struct {
	Event     string `json:"event" example:"delivered"`
	MessageID string `json:"messageId" example:"5d0c6f2e-0e7a-5b7e-9a51-2f3e4d5c6b7a"`
	Timestamp int64  `json:"timestamp" example:"1767225600000"` // unix ms
	Status    string `json:"status" example:"delivered"`
	Reason    string `json:"reason,omitempty" example:"mailbox full"`
}

// Response reports what happened to an accepted callback.
type Response struct {
	Outcome reconcile.Outcome     `json:"outcome"`
	Status  entity.DeliveryStatus `json:"status,omitempty"`
}

// Handler serves POST /webhooks/{provider}.
type Handler struct {
	Processor EventProcessor
	// Secret enables signature checks when non-empty.
	Secret []byte
	Logger *slog.Logger
	Now    func() time.Time
}

// ServeHTTP 配信ステータス Webhook
// @Summary      配信ステータス Webhook
// @Description  ゲートウェイからの配信結果を台帳に反映します。重複・未知の messageId も 202 を返します。反映に失敗した場合は 503 を返し、ゲートウェイの再送を待ちます
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        provider path string true "ゲートウェイ種別" Enums(sms, email)
// @Param        X-Webhook-Signature header string false "本文の HMAC-SHA256 (hex)"
// @Param        request body Request true "配信ステータス"
// @Success      202 {object} Response
// @Failure      400 {string} string "リクエストが不正"
// @Failure      401 {string} string "署名が不正"
// @Failure      503 {string} string "台帳への反映に失敗"
// @Router       /webhooks/{provider} [post]
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.WithRequestID(r.Context(), h.logger())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		respond.SafeError(w, http.StatusBadRequest, errBadBody)
		return
	}
	if len(h.Secret) > 0 && !Verify(h.Secret, body, r.Header.Get(SignatureHeader)) {
		log.Warn("webhook signature mismatch", slog.String("provider", r.PathValue("provider")))
		respond.SafeError(w, http.StatusUnauthorized, errBadSignature)
		return
	}

	ev, err := h.decode(r.PathValue("provider"), body)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	res := h.Processor.ProcessEvent(r.Context(), ev)
	if res.Outcome == reconcile.OutcomeInvalid {
		respond.SafeError(w, http.StatusBadRequest, res.Err)
		return
	}
	if res.Outcome == reconcile.OutcomeError {
		// 台帳は変わっていないのでゲートウェイに再送させる
		w.Header().Set("Retry-After", "30")
		respond.SafeError(w, http.StatusServiceUnavailable, res.Err)
		return
	}
	// 重複・未知 ID は再送を止めるため 202
	respond.JSON(w, http.StatusAccepted, Response{Outcome: res.Outcome, Status: res.Status})
}

func (h Handler) decode(provider string, body []byte) (entity.WebhookEvent, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return entity.WebhookEvent{}, errBadBody
	}
	if req.MessageID == "" {
		return entity.WebhookEvent{}, &entity.ValidationError{Field: "messageId", Message: "is required"}
	}
	raw := req.Status
	if raw == "" {
		raw = req.Event
	}
	status, err := entity.ParseDeliveryStatus(raw)
	if err != nil {
		return entity.WebhookEvent{}, err
	}

	ev := entity.WebhookEvent{
		MessageID:  req.MessageID,
		Provider:   entity.Channel(provider),
		Event:      req.Event,
		Status:     status,
		Reason:     req.Reason,
		ReceivedAt: h.now(),
	}
	if req.Timestamp > 0 {
		ev.ProviderTimestamp = time.UnixMilli(req.Timestamp).UTC()
	}
	return ev, nil
}

func (h Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// Register mounts the webhook route.
func Register(mux *http.ServeMux, h Handler) {
	mux.Handle("POST /webhooks/{provider}", h)
}
