// Package logger provides structured logging for AuthMesh.
//
// It wraps log/slog:
//
//   - logger.go: handler construction, dynamic level, process default
//   - context.go: context propagation of the logger, request ID and client IP
//   - handler.go: stamps request fields from the context onto each record
//   - redact.go: masking of session tokens, recovery codes and secret fields
//
// Password digests, plaintext tokens and TOTP seeds must never reach a log
// line unmasked; the redaction hook runs on every attribute.
package logger
