// Package main provides the entry point for authmesh-server.
//
// The server exposes password login, TOTP second factor and session
// management over HTTP. Sessions, credentials and MFA enrollments live in
// one of the memory, badger, bolt or postgres backends.
//
// Usage:
//
//	authmesh-server [serve] --config /etc/authmesh-server/config.yaml
//	authmesh-server user add --login alice --password '...' --mfa
//	authmesh-server migrate up --postgres-dsn postgres://...
//
// Configuration is read from defaults, then the YAML file, then
// AUTHMESH_* environment variables, then command line flags.
package main
