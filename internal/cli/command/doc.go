// Package command defines the authmesh-cli commands on urfave/cli/v2.
//
//   - login, logout: open and close a session
//   - mfa: verify, setup, disable, reset-recovery
//   - session: list, renew, validate, invalidate, invalidate-others
//   - system: health, ready, version
//
// Every command builds a connection.HTTPClient from the global flags,
// calls one endpoint and prints the envelope's data with the formatter
// picked by --output.
package command
