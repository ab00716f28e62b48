package entity

// ConnectionState is the lifecycle state of a live channel session.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateOpen         ConnectionState = "open"
	StateReconnecting ConnectionState = "reconnecting"
	StateClosed       ConnectionState = "closed"
	// StateOffline is reported once the reconnect cap is reached.
	StateOffline ConnectionState = "offline"
	// StateDisabled means the live channel is switched off by configuration.
	StateDisabled ConnectionState = "disabled"
)

// Active reports whether a transport is being opened or is open.
func (s ConnectionState) Active() bool {
	return s == StateConnecting || s == StateOpen
}

// Session binds one user and farm to a live channel.
type Session struct {
	UserID            int64
	FarmID            int64
	State             ConnectionState
	ReconnectAttempts int
}
