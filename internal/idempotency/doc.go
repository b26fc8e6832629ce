// Package idempotency remembers which task a client's Idempotency-Key created,
// so that a retried create returns the original task instead of a duplicate.
package idempotency
