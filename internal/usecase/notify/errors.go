package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrShuttingDown is returned by Resend after Shutdown has begun.
	ErrShuttingDown = errors.New("notification service is shutting down")

	// ErrNoProvider indicates a ledger entry for a channel with no registered provider.
	ErrNoProvider = errors.New("no provider for channel")

	// ErrNotificationDropped indicates that a send was dropped because no
	// worker slot freed up in time.
	ErrNotificationDropped = errors.New("notification dropped due to pool saturation")
)
