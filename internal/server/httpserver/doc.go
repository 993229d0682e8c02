// Package httpserver provides the HTTP/HTTPS server for AuthMesh.
//
// It uses the standard library net/http ServeMux with method patterns:
//
//   - Auth endpoints: /auth/login, /auth/logout, /auth/mfa/*, /auth/session/*, /auth/sessions
//   - Probe endpoints: /health, /ready
//   - Prometheus endpoint: /metrics
//
// Every /auth route runs through RequestID, Recover, Audit, Metrics and
// the per-IP RateLimit middleware. The limiter configuration is a value
// owned by the Router and can be swapped at runtime with UpdateRateLimit.
package httpserver
