package gateway

import (
	"encoding/json"
	"net/http"

	"authcore/pkg/logging"
)

// WellKnownPath is the discovery path serving the protected resource
// metadata document (RFC 9728).
const WellKnownPath = "/.well-known/oauth-protected-resource"

// supportedScopes is the fixed superset of scopes this resource server
// understands, advertised regardless of which issuers are enabled.
var supportedScopes = []string{
	"repo",
	"read:org",
	"read:user",
	"user:email",
	"workflow",
}

// AuthorizationServer describes one authorization server the resource
// accepts tokens from.
type AuthorizationServer struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// ResourceServer describes this protected resource.
type ResourceServer struct {
	Resource      string   `json:"resource"`
	Realm         string   `json:"realm"`
	BearerMethods []string `json:"bearer_methods_supported"`
}

// ClientRegistration reports dynamic client registration support. This
// core is a client to external authorization servers and never registers
// clients itself.
type ClientRegistration struct {
	Supported bool `json:"supported"`
}

// Metadata is the protected resource metadata document.
type Metadata struct {
	AuthorizationServers []AuthorizationServer `json:"authorization_servers"`
	ResourceServer       ResourceServer        `json:"resource_server"`
	ScopesSupported      []string              `json:"scopes_supported"`
	ClientRegistration   ClientRegistration    `json:"client_registration"`
}

// ProtectedResourceMetadata enumerates the configured authorization
// servers. OAuth and installation auth are each independently optional; a
// deployment with neither still serves a document so clients get a
// definitive "no way in" answer instead of a 404.
func (g *Gateway) ProtectedResourceMetadata() Metadata {
	md := Metadata{
		ResourceServer: ResourceServer{
			Resource:      g.cfg.Server.PublicURL,
			Realm:         g.cfg.Server.Realm,
			BearerMethods: []string{"header"},
		},
		ScopesSupported:      supportedScopes,
		ClientRegistration:   ClientRegistration{Supported: false},
		AuthorizationServers: []AuthorizationServer{},
	}

	if g.cfg.OAuth.Enabled {
		md.AuthorizationServers = append(md.AuthorizationServers, AuthorizationServer{
			Issuer:                            g.cfg.OAuth.Issuer,
			AuthorizationEndpoint:             g.cfg.OAuth.AuthorizationEndpoint,
			TokenEndpoint:                     g.cfg.OAuth.TokenEndpoint,
			RevocationEndpoint:                g.cfg.OAuth.RevocationEndpoint,
			ScopesSupported:                   g.cfg.OAuth.Scopes,
			ResponseTypesSupported:            []string{"code"},
			GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
			CodeChallengeMethodsSupported:     []string{"S256"},
			TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		})
	}

	if g.cfg.App.Enabled {
		md.AuthorizationServers = append(md.AuthorizationServers, AuthorizationServer{
			Issuer:                            g.cfg.App.APIBaseURL,
			TokenEndpoint:                     g.cfg.App.APIBaseURL + "/app/installations/{installation_id}/access_tokens",
			ResponseTypesSupported:            []string{"token"},
			GrantTypesSupported:               []string{"urn:ietf:params:oauth:grant-type:jwt-bearer"},
			TokenEndpointAuthMethodsSupported: []string{"private_key_jwt"},
		})
	}

	return md
}

// WellKnownHandler serves the protected resource metadata document.
func (g *Gateway) WellKnownHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(g.ProtectedResourceMetadata()); err != nil {
			logging.Error("Gateway", err, "Failed to write resource metadata")
		}
	}
}
