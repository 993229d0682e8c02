// Package handler provides the JSON handlers of the AuthMesh HTTP API.
//
//   - auth.go: login and logout
//   - mfa.go: second-factor verification and enrollment management
//   - session.go: listing, renewal, validation and invalidation
//   - health.go: liveness and readiness
//
// Every handler decodes one request, makes exactly one AuthService call
// (one storage transaction) and writes the standard envelope. Handlers
// never touch repositories.
package handler
