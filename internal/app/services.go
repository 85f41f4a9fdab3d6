package app

import (
	"fmt"

	"authcore/internal/appauth"
	"authcore/internal/audit"
	"authcore/internal/config"
	"authcore/internal/gateway"
	"authcore/internal/oauth"
	"authcore/internal/policy"
	"authcore/internal/ratelimit"
	"authcore/pkg/logging"
)

// Services holds the constructed service objects in dependency order. The
// audit logger comes first because every other component reports to it;
// Shutdown stops them in reverse so nothing logs into a stopped sink.
type Services struct {
	Audit    *audit.Logger
	Limiter  *ratelimit.Limiter
	Policies *policy.Engine
	OAuth    *oauth.Issuer
	App      *appauth.Issuer
	Gateway  *gateway.Gateway

	watcher *config.PolicyWatcher
}

// NewServices constructs the service graph from validated configuration.
// Disabled components stay nil; the gateway and the rate limiter tolerate
// nil collaborators by design (the limiter fails open, the gateway
// challenges everything it cannot validate).
func NewServices(cfg config.Config) (*Services, error) {
	s := &Services{}

	s.Audit = audit.NewLogger(cfg.Audit)

	if cfg.Enterprise.Enabled {
		s.Limiter = ratelimit.NewLimiter(cfg.Enterprise.RateLimits)
		s.Policies = policy.NewEngine(cfg.Enterprise.Policies, s.Audit)
		logging.Info("App", "Enterprise mode active: rate limiter and policy engine enabled (%d policies)",
			len(cfg.Enterprise.Policies))
	}

	if cfg.OAuth.Enabled {
		s.OAuth = oauth.NewIssuer(cfg.OAuth, s.Audit)
		logging.Info("App", "OAuth issuer enabled (clientId=%s)", cfg.OAuth.ClientID)
	}

	if cfg.App.Enabled {
		appIssuer, err := appauth.NewIssuer(cfg.App, s.Audit)
		if err != nil {
			s.Shutdown()
			return nil, fmt.Errorf("failed to initialize app issuer: %w", err)
		}
		s.App = appIssuer
		logging.Info("App", "Installation issuer enabled (appId=%s)", cfg.App.AppID)
	}

	s.Gateway = gateway.New(cfg, s.OAuth, s.App, s.Limiter, s.Policies, s.Audit)

	return s, nil
}

// WatchPolicies starts hot-reloading the policy set from the configuration
// directory. A no-op outside enterprise mode.
func (s *Services) WatchPolicies(configPath string) error {
	if s.Policies == nil {
		return nil
	}

	s.watcher = config.NewPolicyWatcher(config.PolicyWatcherConfig{
		ConfigPath: configPath,
		OnReload:   s.Policies.Replace,
	})
	return s.watcher.Start()
}

// Shutdown stops all services in reverse construction order. After it
// returns no background timers or goroutines remain.
func (s *Services) Shutdown() {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if s.App != nil {
		s.App.Stop()
	}
	if s.Limiter != nil {
		s.Limiter.Stop()
	}
	if s.Audit != nil {
		s.Audit.Stop()
	}

	logging.Info("App", "All services stopped")
}
