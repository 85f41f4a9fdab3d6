// Package ratelimit implements per-subject sliding-window request quotas
// keyed by action class. Windows reset lazily on access; a periodic sweep
// evicts windows that are both expired and empty. An absent limiter fails
// open: rate limiting is an enterprise add-on, not a safety gate.
package ratelimit
