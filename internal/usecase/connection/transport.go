package connection

import (
	"context"
	"errors"
	"fmt"
)

// Close codes the manager cares about (RFC 6455 section 7.4.1).
const (
	CloseNormalClosure = 1000
	CloseGoingAway     = 1001
	CloseAbnormal      = 1006
)

// Dialer opens the live channel. Implementations wrap handshake rejections
// (401/403) with entity.ErrAuth and other failures with entity.ErrTransport.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url, token string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url, token string) (Conn, error) {
	return f(ctx, url, token)
}

// Conn is a byte-level duplex channel. ReadMessage is only called from one
// goroutine; WriteMessage, Ping and Close may be called concurrently.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close(code int, reason string) error
}

// CloseError reports the close frame that ended a connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}

// closeCode extracts the close code from a read error. Anything that is not
// a *CloseError counts as an abnormal closure.
func closeCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormal
}

// TokenSource supplies the opaque token presented during the handshake.
type TokenSource interface {
	Token(ctx context.Context, userID, farmID int64) (string, error)
}

// StaticToken is a TokenSource returning the same token for every session.
type StaticToken string

func (t StaticToken) Token(context.Context, int64, int64) (string, error) {
	return string(t), nil
}
