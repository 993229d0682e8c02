// Package config defines the authmesh-server configuration.
//
// ServerConfig (spec.go) is filled from Default, then overlaid by
// internal/infra/confloader with the YAML file, AUTHMESH_* variables and
// command line flags. Verify rejects values the server cannot run with and
// Sanitize masks secrets before the effective configuration is logged.
package config
