package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/usecase/connection"
)

// Dialer opens client connections to a live endpoint.
type Dialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewDialer creates a Dialer. handshakeTimeout bounds the HTTP upgrade;
// the caller's context bounds the whole dial.
func NewDialer(handshakeTimeout, writeTimeout time.Duration) *Dialer {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		writeTimeout: writeTimeout,
	}
}

// Dial connects to url presenting token as a bearer credential. A 401 or 403
// handshake response is reported as entity.ErrAuth.
func (d *Dialer) Dial(ctx context.Context, url, token string) (connection.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with %d", entity.ErrAuth, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", entity.ErrTransport, url, err)
	}
	return &Conn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

// Conn adapts a gorilla connection to connection.Conn.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
}

// ReadMessage returns the next data frame. A close frame from the peer is
// reported as *connection.CloseError.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, &connection.CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return nil, fmt.Errorf("%w: read: %v", entity.ErrTransport, err)
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage sends one text frame.
func (c *Conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write: %v", entity.ErrTransport, err)
	}
	return nil
}

// Ping sends a websocket ping control frame.
func (c *Conn) Ping() error {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("%w: ping: %v", entity.ErrTransport, err)
	}
	return nil
}

// Close sends a close frame with code and closes the socket. Repeated calls
// are no-ops.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		// 1006 is never sent on the wire
		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		err = c.conn.Close()
	})
	return err
}
