// Package service implements the AuthMesh authentication core.
//
// Components, leaves first:
//
//   - CredentialVerifier: checks a login and password against stored credentials
//   - SessionManager: session creation, verification, rotation and revocation
//   - MfaManager: TOTP enrollment, verification and recovery codes
//   - AuthService: the boundary facade; one storage transaction per operation
//
// Managers never open transactions themselves. They receive a Tx from the
// caller so that a multi-step operation (verify a code, consume a recovery
// code, rotate the session) commits or rolls back as one unit.
package service
