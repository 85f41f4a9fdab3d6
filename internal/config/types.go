package config

// Config is the top-level configuration structure for authcore.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	App        AppConfig        `yaml:"app"`
	Audit      AuditConfig      `yaml:"audit"`
	Enterprise EnterpriseConfig `yaml:"enterprise"`
}

// ServerConfig defines the HTTP listener and public identity of the
// protected resource.
type ServerConfig struct {
	Port int    `yaml:"port,omitempty"` // Port to listen on (default: 8090)
	Host string `yaml:"host,omitempty"` // Host to bind to (default: localhost)

	// PublicURL is the externally reachable base URL of this resource
	// server. It is embedded in bearer challenges and in the protected
	// resource metadata document.
	PublicURL string `yaml:"publicURL,omitempty"`

	// Realm names the protection realm in bearer challenges.
	Realm string `yaml:"realm,omitempty"`
}

// OAuthConfig defines the delegated-user OAuth 2.1 issuer.
type OAuthConfig struct {
	Enabled      bool   `yaml:"enabled,omitempty"`
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// Issuer is the authorization server's issuer URL, advertised in the
	// protected resource metadata.
	Issuer string `yaml:"issuer,omitempty"`

	AuthorizationEndpoint string `yaml:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `yaml:"tokenEndpoint,omitempty"`
	RevocationEndpoint    string `yaml:"revocationEndpoint,omitempty"`

	// IdentityEndpoint is the resource server endpoint used to validate
	// bearer tokens and read granted scopes.
	IdentityEndpoint string `yaml:"identityEndpoint,omitempty"`

	RedirectURI string   `yaml:"redirectUri,omitempty"`
	Scopes      []string `yaml:"scopes,omitempty"`
}

// AppConfig defines the application-installation issuer. Installation
// tokens are obtained by exchanging a signed JWT assertion, not through a
// user-delegated grant.
type AppConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	AppID   string `yaml:"appId,omitempty"`

	// PrivateKeyPath points at a PEM-encoded RSA private key used to sign
	// assertions. PrivateKeyPEM takes precedence when both are set; it
	// exists so tests and secret managers can inject key material directly.
	PrivateKeyPath string `yaml:"privateKeyPath,omitempty"`
	PrivateKeyPEM  string `yaml:"privateKeyPEM,omitempty"`

	// APIBaseURL is the base URL of the application platform API.
	APIBaseURL string `yaml:"apiBaseUrl,omitempty"`
}

// AuditConfig defines audit event buffering and persistence.
type AuditConfig struct {
	// PersistToDisk enables append-only NDJSON files, one per UTC day.
	// When disabled events still accumulate in memory for introspection.
	PersistToDisk bool   `yaml:"persistToDisk,omitempty"`
	Directory     string `yaml:"directory,omitempty"`

	// FlushIntervalSeconds is the periodic flush cadence (default: 30).
	FlushIntervalSeconds int `yaml:"flushIntervalSeconds,omitempty"`
}

// EnterpriseConfig gates the rate limiter and policy engine. When disabled
// neither runs and all requests are admitted on token validity alone.
type EnterpriseConfig struct {
	Enabled        bool   `yaml:"enabled,omitempty"`
	OrganizationID string `yaml:"organizationId,omitempty"`

	RateLimits RateLimitConfig `yaml:"rateLimits"`
	Policies   []PolicyConfig  `yaml:"policies,omitempty"`
}

// RateLimitConfig holds per-action-class hourly request limits.
type RateLimitConfig struct {
	APIHourly   int `yaml:"apiHourly,omitempty"`
	AuthHourly  int `yaml:"authHourly,omitempty"`
	TokenHourly int `yaml:"tokenHourly,omitempty"`
}

// PolicyConfig is the declarative form of an access policy as it appears
// in configuration. The policy engine converts it into its runtime
// representation at load and reload time.
type PolicyConfig struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name,omitempty"`
	Enabled    bool              `yaml:"enabled"`
	Conditions []ConditionConfig `yaml:"conditions,omitempty"`
	Actions    []string          `yaml:"actions,omitempty"`
}

// ConditionConfig is one declarative policy condition. The condition type
// alone selects which request attribute is compared; Field is accepted for
// compatibility with configurations that spell the attribute out
// separately, but it carries no additional meaning.
type ConditionConfig struct {
	Type     string `yaml:"type"`
	Field    string `yaml:"field,omitempty"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
}
