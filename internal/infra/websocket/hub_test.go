package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/usecase/connection"
)

/* ─── ヘルパ ─── */

// newTestServer serves the hub, taking the user and farm ids from the query
// string. A token of "bad" is rejected before the upgrade.
func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer bad" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		uid, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		fid, _ := strconv.ParseInt(r.URL.Query().Get("farm"), 10, 64)
		hub.Serve(w, r, uid, fid)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base string, user, farm int64) connection.Conn {
	t.Helper()
	d := NewDialer(time.Second, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, base+"?user="+strconv.FormatInt(user, 10)+"&farm="+strconv.FormatInt(farm, 10), "good")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(connection.CloseNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn connection.Conn) entity.Frame {
	t.Helper()
	data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f entity.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func writeFrame(t *testing.T, conn connection.Conn, f entity.Frame) {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(data))
}

/* ─── テスト ─── */

func TestHub_SendToReachesClient(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	_, base := newTestServer(t, hub)
	conn := dial(t, base, 1, 10)

	require.Eventually(t, func() bool { return len(hub.Endpoints(1)) == 1 }, time.Second, 10*time.Millisecond)

	frame := entity.Frame{
		Type: entity.FrameNotification,
		Payload: entity.NotificationPayload{
			MessageID: "m1", Category: entity.CategoryWeatherAlert,
			Title: "Frost tonight", Body: "Cover seedlings", Priority: entity.PriorityHigh,
		},
		Timestamp: time.Now(),
	}
	require.NoError(t, hub.SendTo(context.Background(), hub.Endpoints(1)[0], frame))

	got := readFrame(t, conn)
	assert.Equal(t, entity.FrameNotification, got.Type)
	assert.Equal(t, frame.Payload, got.Payload)
}

func TestHub_SendToUnknownEndpoint(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	err := hub.SendTo(context.Background(), "nope", entity.Frame{Type: entity.FrameHeartbeat})
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
	assert.Empty(t, hub.Endpoints(42))
}

func TestHub_AnswersHeartbeat(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	_, base := newTestServer(t, hub)
	conn := dial(t, base, 1, 10)

	writeFrame(t, conn, entity.Frame{Type: entity.FrameHeartbeat, Payload: entity.HeartbeatPayload{}, Timestamp: time.Now()})

	got := readFrame(t, conn)
	assert.Equal(t, entity.FrameHeartbeat, got.Type)
}

func TestHub_RelaysPresenceWithinFarm(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	_, base := newTestServer(t, hub)
	manager := dial(t, base, 1, 10)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	worker := dial(t, base, 2, 10)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	writeFrame(t, worker, entity.NewPresenceFrame(2, 10, time.Now()))

	online := readFrame(t, manager)
	assert.Equal(t, entity.FramePresenceOnline, online.Type)
	assert.Equal(t, entity.PresencePayload{UserID: 2, FarmID: 10}, online.Payload)

	require.NoError(t, worker.Close(connection.CloseNormalClosure, "bye"))

	offline := readFrame(t, manager)
	assert.Equal(t, entity.FramePresenceOffline, offline.Type)
	require.Eventually(t, func() bool { return len(hub.Endpoints(2)) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_RunClosesConnectionsOnShutdown(t *testing.T) {
	hub := NewHub(HubConfig{PingInterval: 50 * time.Millisecond}, nil)
	_, base := newTestServer(t, hub)
	conn := dial(t, base, 1, 10)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	// reading keeps answering the hub's pings
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	// several ping rounds keep a responsive client alive
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, hub.Count())

	cancel()
	<-done

	select {
	case err := <-readErr:
		var ce *connection.CloseError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, connection.CloseGoingAway, ce.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not observe the close")
	}
	assert.Zero(t, hub.Count())
}

func TestDialer_RejectedHandshakeIsAuthError(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), nil)
	_, base := newTestServer(t, hub)

	_, err := NewDialer(time.Second, time.Second).Dial(context.Background(), base, "bad")
	assert.ErrorIs(t, err, entity.ErrAuth)

	_, err = NewDialer(time.Second, time.Second).Dial(context.Background(), "ws://127.0.0.1:1/live", "good")
	assert.ErrorIs(t, err, entity.ErrTransport)
}
