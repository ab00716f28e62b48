package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists indicates that an entity with the same key is already stored
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")
)

// Delivery subsystem error taxonomy.
var (
	// ErrTransport indicates a connect or send failure on the live channel.
	// It is recovered by the reconnect loop and only surfaces as a status.
	ErrTransport = errors.New("live channel transport error")

	// ErrAuth indicates a missing or rejected token during the live channel handshake
	ErrAuth = errors.New("live channel authentication failed")

	// ErrChannelUnavailable indicates missing contact data or an unconfigured gateway.
	// The channel is skipped for the current dispatch; it is not a failure.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrProvider indicates that a delivery gateway rejected a request
	ErrProvider = errors.New("provider rejected request")

	// ErrDuplicateWebhook indicates a webhook that was already consumed
	ErrDuplicateWebhook = errors.New("duplicate webhook")

	// ErrUnknownMessage indicates a webhook referencing an untracked ledger entry
	ErrUnknownMessage = errors.New("unknown message id")

	// ErrInvalidTransition indicates a status change that the ledger state machine does not allow
	ErrInvalidTransition = errors.New("invalid delivery status transition")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap allows errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ProviderError wraps a gateway failure with the channel that produced it.
type ProviderError struct {
	Channel Channel
	Code    string
	Err     error
}

// Error returns a formatted error message for the provider failure.
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s provider error (%s): %v", e.Channel, e.Code, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Channel, e.Err)
}

// Unwrap returns both ErrProvider and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}
