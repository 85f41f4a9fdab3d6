// Package gateway implements the HTTP-facing half of the authorization
// handshake: bearer token extraction and validation, RFC 6750 challenges
// on 401 responses, the RFC 9728 protected-resource-metadata discovery
// document, and the enterprise admission pipeline (rate limiter, then
// policy engine) for validated identities.
package gateway
