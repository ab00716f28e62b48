// Package resilience groups the fault tolerance helpers used on the
// delivery path.
//
//   - circuitbreaker: gobreaker wrappers for the SMS and email gateways and
//     the ledger store
//   - retry: short exponential backoff for a single provider call, honouring
//     Retry-After hints
//
// Long outages are not retried here. A failed send is recorded in the
// delivery ledger and rescheduled by the reconcile package.
package resilience
