// Package oauth provides shared OAuth 2.1 primitives used across authcore:
// PKCE verifier/challenge generation, state parameters, constant-time
// comparisons, bearer token extraction and RFC 6750 challenge formatting.
//
// This package is intentionally free of network and storage concerns; the
// issuer and gateway components in internal/ build on it.
package oauth
