// Package config resolves the service configuration. A base record of
// defaults is overlaid with a named profile (development, production,
// testing), then with the optional YAML file, environment variables, and
// CLI flags. Precedence: CLI flags > Environment variables > YAML config >
// Profile > Base defaults. Resolve is pure; Load performs the I/O.
package config
