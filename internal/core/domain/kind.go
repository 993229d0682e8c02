package domain

import "strings"

// ErrorKind is the client-visible class of a failure.
type ErrorKind string

const (
	KindNone                  ErrorKind = ""
	KindInvalidAuthentication ErrorKind = "invalid_authentication"
	KindSessionInvalid        ErrorKind = "session_invalid"
	KindMfaInvalid            ErrorKind = "mfa_invalid"
	KindNotFound              ErrorKind = "not_found"
	KindBadRequest            ErrorKind = "bad_request"
	KindRateLimited           ErrorKind = "rate_limited"
	KindServerError           ErrorKind = "server_error"
)

// KindOf classifies err. Anything that is not a known DomainError is a
// server error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	code := GetErrorCode(err)
	switch {
	case code == "":
		return KindServerError
	case code == ErrInvalidAuthentication.Code:
		return KindInvalidAuthentication
	case code == ErrSessionInvalid.Code:
		return KindSessionInvalid
	case code == ErrMfaInvalid.Code:
		return KindMfaInvalid
	case code == ErrMfaLocked.Code, code == ErrRateLimited.Code:
		return KindRateLimited
	case strings.HasSuffix(code, "-4040"):
		return KindNotFound
	case strings.HasPrefix(code, "AM-ARG-"), code == ErrBadRequest.Code,
		code == ErrTokenMalformed.Code, strings.HasSuffix(code, "-4001"):
		return KindBadRequest
	default:
		return KindServerError
	}
}
