// Package opsalert posts operational alerts, such as a breach of the
// delivery objectives, to the on-call channel.
package opsalert

import (
	"context"
	"time"
)

// Severity orders alerts for display.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityResolved Severity = "resolved"
)

// Field is one labelled value shown under the alert text.
type Field struct {
	Label string
	Value string
}

// Alert is a single operational message.
type Alert struct {
	Title    string
	Text     string
	Severity Severity
	Fields   []Field
	At       time.Time
}

// Alerter delivers alerts. Implementations must be safe for concurrent use.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// Noop drops every alert. It is used when no webhook is configured.
type Noop struct{}

func (Noop) Alert(context.Context, Alert) error { return nil }
