package oauth

import (
	"fmt"
	"strings"
)

// Challenge represents the parameters of an RFC 6750 bearer challenge sent
// in a WWW-Authenticate header on a 401 response.
type Challenge struct {
	// Realm is the protection realm (often the resource server name).
	Realm string

	// Scope is the space-separated list of scopes required to access the
	// protected resource.
	Scope string

	// Error is the RFC 6750 error code (invalid_token, insufficient_scope).
	Error string

	// ErrorDescription is a human-readable description of the error.
	ErrorDescription string

	// ResourceMetadataURL points to the RFC 9728 protected resource
	// metadata document. Always present so clients can discover the
	// authorization servers without prior configuration.
	ResourceMetadataURL string
}

// FormatWWWAuthenticate renders the challenge as a WWW-Authenticate header
// value. Parameters are emitted in a fixed order; absent optional
// parameters are omitted entirely.
func (c *Challenge) FormatWWWAuthenticate() string {
	var b strings.Builder
	b.WriteString("Bearer")

	params := []struct {
		name  string
		value string
	}{
		{"realm", c.Realm},
		{"scope", c.Scope},
		{"error", c.Error},
		{"error_description", c.ErrorDescription},
		{"resource_metadata", c.ResourceMetadataURL},
	}

	first := true
	for _, p := range params {
		if p.value == "" {
			continue
		}
		if first {
			b.WriteString(" ")
			first = false
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%q", p.name, p.value)
	}

	return b.String()
}

// ParseBearerToken extracts the token from an Authorization header value of
// the form "Bearer <token>". The scheme match is case-insensitive per RFC
// 9110. A malformed header is rejected immediately without any network
// activity.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("malformed authorization header: expected 'Bearer <token>'")
	}

	return parts[1], nil
}
