package pathutil

import (
	"errors"
	"strings"
)

const maxMessageIDLength = 128

var (
	ErrMissingMessageID = errors.New("message id is required")
	ErrInvalidMessageID = errors.New("invalid message id")
)

// MessageID checks a message id taken from the URL.
func MessageID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	switch {
	case id == "":
		return "", ErrMissingMessageID
	case len(id) > maxMessageIDLength, strings.ContainsAny(id, "/?#"):
		return "", ErrInvalidMessageID
	}
	return id, nil
}
