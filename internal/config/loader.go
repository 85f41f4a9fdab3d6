package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"authcore/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/authcore"
	configFileName = "config.yaml"
)

// GetDefaultConfigPath returns the per-user configuration directory.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}

	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads configuration from the given directory. The directory
// should contain config.yaml; a missing file yields the defaults. After
// file loading, environment variable overrides are applied so secrets can
// be kept out of the file.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&config)
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// Environment variables recognized as overrides. Only credential material
// is overridable this way; structural settings belong in the file.
const (
	EnvOAuthClientID     = "AUTHCORE_OAUTH_CLIENT_ID"
	EnvOAuthClientSecret = "AUTHCORE_OAUTH_CLIENT_SECRET"
	EnvAppID             = "AUTHCORE_APP_ID"
	EnvAppPrivateKey     = "AUTHCORE_APP_PRIVATE_KEY"
)

func applyEnvOverrides(config *Config) {
	if v := os.Getenv(EnvOAuthClientID); v != "" {
		config.OAuth.ClientID = v
	}
	if v := os.Getenv(EnvOAuthClientSecret); v != "" {
		config.OAuth.ClientSecret = v
	}
	if v := os.Getenv(EnvAppID); v != "" {
		config.App.AppID = v
	}
	if v := os.Getenv(EnvAppPrivateKey); v != "" {
		config.App.PrivateKeyPEM = v
	}
}

// LoadPolicies re-reads only the policy list from the configuration file.
// Used by the watcher for hot reload so a malformed edit cannot disturb
// the rest of the running configuration.
func LoadPolicies(configPath string) ([]PolicyConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config from %s: %w", configFilePath, err)
	}

	return config.Enterprise.Policies, nil
}
