// Package auth checks HS256 bearer tokens and enforces the role table for
// the notification API and the live endpoint.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"farm-notify/internal/handler/http/respond"
	"farm-notify/internal/observability/logging"
)

type ctxKey struct{}

// FromContext returns the claims of the authenticated caller.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}

// WithClaims stores c in ctx.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// LivePath is the websocket endpoint; browsers cannot set headers on a
// websocket handshake, so it also accepts ?token=.
const LivePath = "/live"

// Authz requires a valid token on every non-public endpoint and checks the
// caller's role against RolePermissions.
func Authz(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			defer func() { authzCheckDuration.Observe(time.Since(start).Seconds()) }()

			claims, err := ParseToken(secret, tokenFrom(r))
			if err != nil {
				authRequestsTotal.WithLabelValues("unknown", "unauthorized").Inc()
				logging.WithRequestID(r.Context(), logger).Info("token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", respond.SanitizeError(err)))
				respond.SafeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
				return
			}
			if !checkRolePermission(claims.Role, r.Method, r.URL.Path) {
				authRequestsTotal.WithLabelValues(claims.Role, "forbidden").Inc()
				forbiddenAttempts.WithLabelValues(claims.Role, r.Method).Inc()
				respond.SafeError(w, http.StatusForbidden, errors.New("forbidden"))
				return
			}
			authRequestsTotal.WithLabelValues(claims.Role, "success").Inc()
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(tok)
	}
	if r.URL.Path == LivePath {
		return r.URL.Query().Get("token")
	}
	return ""
}
