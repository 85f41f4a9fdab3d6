// Package oauth implements the delegated-user credential issuer: OAuth 2.1
// authorization-code flows with PKCE against an external authorization
// server, token refresh, revocation, and bearer token validation against
// the resource server's identity endpoint.
//
// The issuer persists nothing. Flow state (state parameter, PKCE verifier)
// is owned by the caller between StartFlow and ExchangeCode, and issued
// tokens are owned by the caller outright.
package oauth
