// Package main provides the entry point for authmesh-cli.
//
// The CLI talks to authmesh-server over HTTP:
//
//   - Login and logout
//   - MFA verification, enrollment and recovery codes
//   - Session listing, renewal, validation and invalidation
//   - Server health and version
//
// Usage:
//
//	authmesh-cli login --login alice
//	authmesh-cli mfa verify --code 123456
//	authmesh-cli session list -o json
package main
