package oauth

import (
	"time"
)

// FlowStart is the result of starting an authorization flow. Nothing is
// persisted by the issuer: the caller must hold State and CodeVerifier
// until the code exchange.
type FlowStart struct {
	// AuthorizationURL is the fully formed URL the user agent is sent to.
	AuthorizationURL string

	// State is the CSRF token bound to this flow.
	State string

	// CodeVerifier is the PKCE secret, presented only at code exchange.
	CodeVerifier string
}

// AccessToken is a delegated-user credential produced by code exchange or
// refresh. Ownership transfers to the caller; the issuer does not keep it.
type AccessToken struct {
	// Value is the bearer token itself.
	Value string

	// RefreshValue allows obtaining a replacement token. A refresh
	// response that omits a new refresh token preserves the prior one.
	RefreshValue string

	// TokenType is the presentation scheme, "Bearer" unless the server
	// says otherwise.
	TokenType string

	// ExpiresAt is the absolute expiry derived from the server's
	// expires_in (default 3600s when the server omits it).
	ExpiresAt time.Time

	// GrantedScopes is the scope list the server actually granted.
	GrantedScopes []string
}

// ValidationResult is the outcome of validating a bearer token against
// the resource server's identity endpoint. Validation failures are data,
// not errors: they are expected, frequent, and must not break the request
// pipeline.
type ValidationResult struct {
	Valid bool

	// Subject is the authenticated principal reported by the identity
	// endpoint (empty when invalid).
	Subject string

	// Scopes are the granted scopes reported via the scopes response
	// header.
	Scopes []string

	// Error describes why validation failed (empty when valid).
	Error string
}

// tokenResponse is the wire shape of a token endpoint response.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// identityResponse is the subset of the identity endpoint body we read.
type identityResponse struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}
