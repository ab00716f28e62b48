package responsewriter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseWriter_RecordsStatusAndSize(t *testing.T) {
	rec := httptest.NewRecorder()
	w := Wrap(rec)

	w.WriteHeader(http.StatusAccepted)
	w.WriteHeader(http.StatusInternalServerError) // ignored
	n, err := w.Write([]byte(`{"outcome":"applied"}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, w.StatusCode())
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, n, w.BytesWritten())
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	w := Wrap(httptest.NewRecorder())
	_, _ = w.Write([]byte("ok"))
	assert.Equal(t, http.StatusOK, w.StatusCode())
	assert.Equal(t, 2, w.BytesWritten())
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	w := Wrap(httptest.NewRecorder())
	_, _, err := w.Hijack()
	assert.ErrorIs(t, err, ErrHijackUnsupported)
	assert.False(t, w.Hijacked())
}

func TestResponseWriter_WebsocketUpgradeThroughWrapper(t *testing.T) {
	upgraded := make(chan *ResponseWriter, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		wrapped := Wrap(rw)
		conn, err := upgrader.Upgrade(wrapped, r, nil)
		upgraded <- wrapped
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))

	wrapped := <-upgraded
	assert.True(t, wrapped.Hijacked())
	assert.Equal(t, http.StatusSwitchingProtocols, wrapped.StatusCode())
}
