// Package domain defines the core domain models for AuthMesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Session: one login of a user, soft-revoked and never deleted
//   - Credential: a user's login record and MFA flag
//   - MfaEnrollment: TOTP seed and hashed single-use recovery codes
//   - Token: session token generation and hashing
//   - Errors: coded domain errors and their client-visible kinds
package domain
