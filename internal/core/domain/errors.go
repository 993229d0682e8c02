package domain

import (
	"errors"
	"time"
)

// DomainError is a failure with a stable code of the form AM-<AREA>-<NNNN>.
// The last four digits follow the HTTP status the error surfaces as, with a
// trailing digit to tell related errors apart.
type DomainError struct {
	Code    string
	Message string
	Details string // free-form context, safe to show the caller
	Cause   error  // never shown to the caller
}

func (e *DomainError) Error() string {
	msg := "[" + e.Code + "] " + e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is matches any DomainError with the same code, so sentinels compare equal
// to copies made by WithDetails and WithCause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewDomainError declares a sentinel.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WithDetails returns a copy carrying details. The receiver is not changed.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy wrapping cause. The receiver is not changed.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// IsDomainError reports whether err wraps a DomainError, and when code is
// non-empty, whether that error has this code.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return code == "" || de.Code == code
}

// GetErrorCode returns the code of the DomainError wrapped by err, or "".
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// LockedError is ErrMfaLocked with the time left on the lockout.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string { return ErrMfaLocked.Error() }

func (e *LockedError) Unwrap() error { return ErrMfaLocked }

// Sentinels. Codes are part of the API and must not change.
var (
	// ErrInvalidAuthentication is the single outcome for an unknown login,
	// an empty password and a wrong password.
	ErrInvalidAuthentication = NewDomainError("AM-AUTH-4030", "invalid authentication")

	// ErrSessionInvalid covers a token that is absent, revoked, expired,
	// owned by another user, or in the wrong restricted state.
	ErrSessionInvalid    = NewDomainError("AM-SESS-4010", "session invalid")
	ErrSessionNotFound   = NewDomainError("AM-SESS-4040", "session not found")
	ErrSessionValidation = NewDomainError("AM-SESS-4001", "session validation failed")

	ErrTokenMalformed    = NewDomainError("AM-TOKN-4000", "malformed token")
	ErrTokenHashConflict = NewDomainError("AM-TOKN-4090", "token hash conflict")

	// ErrMfaInvalid means neither a TOTP code nor a recovery code matched.
	ErrMfaInvalid     = NewDomainError("AM-MFA-4011", "invalid multi-factor code")
	ErrMfaNotEnrolled = NewDomainError("AM-MFA-4040", "mfa not enrolled")
	// ErrMfaLocked is returned while a user is locked out after repeated
	// verification failures.
	ErrMfaLocked     = NewDomainError("AM-MFA-4290", "too many failed mfa attempts")
	ErrMfaValidation = NewDomainError("AM-MFA-4001", "mfa enrollment validation failed")

	ErrUserNotFound   = NewDomainError("AM-USER-4040", "user not found")
	ErrUserConflict   = NewDomainError("AM-USER-4090", "user login conflict")
	ErrUserValidation = NewDomainError("AM-USER-4001", "user validation failed")

	ErrInternalServer     = NewDomainError("AM-SYS-5000", "internal server error")
	ErrStorageError       = NewDomainError("AM-SYS-5001", "storage error")
	ErrServiceUnavailable = NewDomainError("AM-SYS-5030", "service unavailable")
	ErrBadRequest         = NewDomainError("AM-SYS-4000", "bad request")
	ErrRateLimited        = NewDomainError("AM-SYS-4290", "too many requests")

	ErrInvalidArgument = NewDomainError("AM-ARG-4001", "invalid argument")
	ErrMissingArgument = NewDomainError("AM-ARG-4002", "missing required argument")
)
