// Package gateway contains the outbound delivery gateways used by the SMS and
// email channel providers: a bulk SMS HTTP API client, a Postmark client, and
// a dry-run gateway for local development.
//
// Gateways retry transient failures (5xx, 429, network timeouts) with
// exponential backoff from the resilience/retry package. Permanent failures
// surface as *ClientError so the caller can record them without resending.
package gateway
