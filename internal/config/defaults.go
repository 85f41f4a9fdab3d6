package config

const (
	// DefaultPort is the default listen port for the gateway.
	DefaultPort = 8090

	// DefaultHost is the default bind host.
	DefaultHost = "localhost"

	// DefaultRealm names the protection realm when none is configured.
	DefaultRealm = "authcore"

	// DefaultAuditFlushIntervalSeconds is the periodic audit flush cadence.
	DefaultAuditFlushIntervalSeconds = 30

	// DefaultAuditDirectory is where audit log files are written.
	DefaultAuditDirectory = "audit-logs"
)

// Default hourly rate limits per action class. Auth and token operations
// are cheaper to abuse than plain API calls, so their limits are tighter.
const (
	DefaultAPIHourlyLimit   = 5000
	DefaultAuthHourlyLimit  = 60
	DefaultTokenHourlyLimit = 300
)

// GetDefaultConfig returns the default configuration for authcore.
// Both issuers are disabled by default and require explicit enablement.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:  DefaultPort,
			Host:  DefaultHost,
			Realm: DefaultRealm,
		},
		Audit: AuditConfig{
			PersistToDisk:        false,
			Directory:            DefaultAuditDirectory,
			FlushIntervalSeconds: DefaultAuditFlushIntervalSeconds,
		},
		Enterprise: EnterpriseConfig{
			Enabled: false,
			RateLimits: RateLimitConfig{
				APIHourly:   DefaultAPIHourlyLimit,
				AuthHourly:  DefaultAuthHourlyLimit,
				TokenHourly: DefaultTokenHourlyLimit,
			},
		},
	}
}
