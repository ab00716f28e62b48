package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/handler/http/auth"
	"farm-notify/internal/handler/http/delivery"
	"farm-notify/internal/handler/http/webhook"
	ws "farm-notify/internal/infra/websocket"
	"farm-notify/internal/usecase/reconcile"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, context.Background(), "stats", "--format", "yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestToken(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		want    auth.Claims
	}{
		{
			name: "farmer token",
			args: []string{"token", "--secret", testSecret, "--role", "farmer", "--sub", "42", "--farm", "7"},
			want: auth.Claims{Subject: "42", Role: "farmer", FarmID: 7},
		},
		{
			name:    "weak secret",
			args:    []string{"token", "--secret", "short"},
			wantErr: "at least",
		},
		{
			name:    "unknown role",
			args:    []string{"token", "--secret", testSecret, "--role", "owner"},
			wantErr: `unknown role "owner"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, context.Background(), tt.args...)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			claims, err := auth.ParseToken([]byte(testSecret), strings.TrimSpace(out))
			require.NoError(t, err)
			assert.Equal(t, tt.want, claims)
		})
	}
}

func TestStats(t *testing.T) {
	// Arrange
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/deliveries/stats" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(delivery.StatsResponse{
			Counts: map[entity.DeliveryStatus]int{entity.StatusSent: 3, entity.StatusDelivered: 5},
			Total:  8,
		})
	}))
	defer srv.Close()

	// Act
	out, err := execute(t, context.Background(), "stats", "--server", srv.URL+"/", "--token", "tok-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Contains(t, out, "sent        3")
	assert.Contains(t, out, "delivered   5")
	assert.Contains(t, out, "bounced     0")
	assert.Contains(t, out, "total       8")
}

func TestStats_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := execute(t, context.Background(), "stats", "--server", srv.URL)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestWebhook_SignsBody(t *testing.T) {
	// Arrange
	var got webhook.Request
	var path string
	var verified bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		verified = webhook.Verify([]byte("hook-secret"), body, r.Header.Get(webhook.SignatureHeader))
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(webhook.Response{Outcome: reconcile.OutcomeApplied, Status: entity.StatusBounced})
	}))
	defer srv.Close()

	// Act
	out, err := execute(t, context.Background(),
		"webhook", "email",
		"--server", srv.URL,
		"--secret", "hook-secret",
		"--message-id", "msg-1",
		"--event", "bounce",
		"--reason", "mailbox full",
	)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "/webhooks/email", path)
	assert.True(t, verified)
	assert.Equal(t, "msg-1", got.MessageID)
	assert.Equal(t, "bounce", got.Status, "status defaults to the event")
	assert.Equal(t, "mailbox full", got.Reason)
	assert.NotZero(t, got.Timestamp)
	assert.Contains(t, out, "outcome: applied")
	assert.Contains(t, out, "status:  bounced")
}

func TestWebhook_RequiresMessageID(t *testing.T) {
	_, err := execute(t, context.Background(), "webhook", "sms")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--message-id")
}

func TestListen_PrintsNotifications(t *testing.T) {
	// Arrange
	hub := ws.NewHub(ws.DefaultHubConfig(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, 42, 7)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	var out string
	var err error
	go func() {
		defer close(done)
		out, err = execute(t, ctx,
			"listen",
			"--url", "ws"+strings.TrimPrefix(srv.URL, "http"),
			"--user", "42", "--farm", "7",
			"--token", "tok",
			"--count", "1",
		)
	}()

	// Act
	require.Eventually(t, func() bool { return len(hub.Endpoints(42)) == 1 }, 5*time.Second, 20*time.Millisecond)
	ep := hub.Endpoints(42)[0]
	require.NoError(t, hub.SendTo(ctx, ep, entity.Frame{
		Type:      entity.FrameTaskAssigned,
		Payload:   entity.TaskAssignedPayload{TaskID: 1, Title: "Clean milking parlour", AssignedBy: "Ana"},
		Timestamp: time.Now(),
	}))

	// Assert
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("listen did not exit after --count notifications")
	}
	require.NoError(t, err)
	assert.Contains(t, out, "New task assigned (medium): Clean milking parlour (assigned by Ana)")
}

func TestListen_RequiresUser(t *testing.T) {
	_, err := execute(t, context.Background(), "listen")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}
