// Package live upgrades authenticated farm users onto the websocket hub.
package live

import (
	"errors"
	"net/http"

	"farm-notify/internal/handler/http/auth"
	"farm-notify/internal/handler/http/respond"
)

// Server runs one upgraded connection until it closes.
type Server interface {
	Serve(w http.ResponseWriter, r *http.Request, userID, farmID int64)
}

var (
	errDisabled  = errors.New("live channel disabled")
	errNoSubject = errors.New("forbidden: token subject must be a user id")
)

// Handler serves GET /live.
type Handler struct {
	Hub     Server
	Enabled bool
}

// ServeHTTP リアルタイム通知
// @Summary      リアルタイム通知
// @Description  WebSocket にアップグレードし、プレゼンス・タスク・アラートのフレームを配信します。トークンは Authorization ヘッダか token クエリで渡します
// @Tags         live
// @Security     BearerAuth
// @Param        token query string false "JWT (ヘッダを設定できないクライアント向け)"
// @Success      101 {string} string "Switching Protocols"
// @Failure      401 {string} string "Authentication required"
// @Failure      403 {string} string "Forbidden"
// @Failure      503 {string} string "live channel disabled"
// @Router       /live [get]
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Enabled {
		respond.Error(w, http.StatusServiceUnavailable, errDisabled)
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		respond.SafeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return
	}
	userID := claims.UserID()
	if userID == 0 {
		respond.SafeError(w, http.StatusForbidden, errNoSubject)
		return
	}
	h.Hub.Serve(w, r, userID, claims.FarmID)
}

// Register mounts the live route.
func Register(mux *http.ServeMux, hub Server, enabled bool) {
	mux.Handle("GET "+auth.LivePath, Handler{Hub: hub, Enabled: enabled})
}
