// Package config defines the typed configuration for authcore, loads it
// from YAML with environment-variable overrides for credential material,
// validates it, and watches the configuration file to hot-reload the
// policy list.
package config
