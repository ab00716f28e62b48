// Package observability groups the notifier's logging, metrics, delivery
// objectives and tracing.
//
// Subpackages:
//   - logging: slog construction and context propagation
//   - metrics: ledger and database pool gauges
//   - slo: delivery success objectives
//   - tracing: OpenTelemetry provider and HTTP middleware
package observability
