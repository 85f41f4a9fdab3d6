package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for problems that would prevent the
// services from starting. All problems are collected and reported together
// so an operator can fix a broken file in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	if c.OAuth.Enabled {
		if c.OAuth.ClientID == "" {
			problems = append(problems, "oauth.clientId is required when oauth is enabled")
		}
		if c.OAuth.ClientSecret == "" {
			problems = append(problems, "oauth.clientSecret is required when oauth is enabled")
		}
		if c.OAuth.AuthorizationEndpoint == "" {
			problems = append(problems, "oauth.authorizationEndpoint is required when oauth is enabled")
		}
		if c.OAuth.TokenEndpoint == "" {
			problems = append(problems, "oauth.tokenEndpoint is required when oauth is enabled")
		}
	}

	if c.App.Enabled {
		if c.App.AppID == "" {
			problems = append(problems, "app.appId is required when app auth is enabled")
		}
		if c.App.PrivateKeyPath == "" && c.App.PrivateKeyPEM == "" {
			problems = append(problems, "app.privateKeyPath or app.privateKeyPEM is required when app auth is enabled")
		}
		if c.App.APIBaseURL == "" {
			problems = append(problems, "app.apiBaseUrl is required when app auth is enabled")
		}
	}

	if c.Audit.PersistToDisk && c.Audit.Directory == "" {
		problems = append(problems, "audit.directory is required when audit.persistToDisk is enabled")
	}

	for i, p := range c.Enterprise.Policies {
		if p.ID == "" {
			problems = append(problems, fmt.Sprintf("enterprise.policies[%d] is missing an id", i))
		}
		for j, cond := range p.Conditions {
			if cond.Type == "" {
				problems = append(problems, fmt.Sprintf("enterprise.policies[%d].conditions[%d] is missing a type", i, j))
			}
			if cond.Operator == "" {
				problems = append(problems, fmt.Sprintf("enterprise.policies[%d].conditions[%d] is missing an operator", i, j))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
