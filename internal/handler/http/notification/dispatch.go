// Package notification exposes the dispatcher to farm backend services.
package notification

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/handler/http/respond"
	"farm-notify/internal/observability/logging"
	"farm-notify/internal/usecase/notify"
)

// DispatchRequest carries the event and the recipient's preferences.
type DispatchRequest struct {
	Event       *entity.NotificationEvent           `json:"event"`
	Preferences *entity.UserNotificationPreferences `json:"preferences"`
}

// DispatchResponse reports per-channel success. Skipped channels are absent
// from both maps.
type DispatchResponse struct {
	EventID    string                    `json:"eventId"`
	Results    entity.DispatchResult     `json:"results"`
	MessageIDs map[entity.Channel]string `json:"messageIds"`
}

// DispatchHandler serves POST /notifications/dispatch.
type DispatchHandler struct {
	Svc    notify.Service
	Logger *slog.Logger
}

// ServeHTTP 通知配信
// @Summary      通知配信
// @Description  イベントを利用者の設定に従って push / SMS / email に配信します
// @Tags         notifications
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body DispatchRequest true "イベントと通知設定"
// @Success      200 {object} DispatchResponse
// @Failure      400 {string} string "リクエストが不正"
// @Failure      401 {string} string "Authentication required"
// @Failure      403 {string} string "Forbidden"
// @Router       /notifications/dispatch [post]
func (h DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := validate(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	// ID を先に確定させて呼び出し側がメッセージ ID を辿れるようにする
	if strings.TrimSpace(req.Event.ID) == "" {
		req.Event.ID = uuid.NewString()
	}

	results := h.Svc.Dispatch(r.Context(), req.Event, req.Preferences)

	ids := make(map[entity.Channel]string, len(results))
	for ch := range results {
		ids[ch] = notify.MessageID(req.Event.ID, ch)
	}
	logging.WithRequestID(r.Context(), h.Logger).Info("notification dispatched",
		slog.String("event_id", req.Event.ID),
		slog.String("category", string(req.Event.Category)),
		slog.Any("results", results))

	respond.JSON(w, http.StatusOK, DispatchResponse{EventID: req.Event.ID, Results: results, MessageIDs: ids})
}

func validate(req *DispatchRequest) error {
	if req.Event == nil {
		return &entity.ValidationError{Field: "event", Message: "is required"}
	}
	if req.Preferences == nil {
		return &entity.ValidationError{Field: "preferences", Message: "is required"}
	}
	ev := *req.Event
	if err := ev.Validate(); err != nil {
		return err
	}
	if req.Preferences.UserID == 0 {
		req.Preferences.UserID = ev.UserID
	}
	if req.Preferences.UserID != ev.UserID {
		return &entity.ValidationError{Field: "preferences.userId", Message: "must be the event's userId"}
	}
	return req.Preferences.Validate()
}

// Register mounts the dispatch route.
func Register(mux *http.ServeMux, svc notify.Service, logger *slog.Logger) {
	mux.Handle("POST /notifications/dispatch", DispatchHandler{Svc: svc, Logger: logger})
}
