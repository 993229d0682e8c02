package handler

import (
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
	Details   string `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message, details string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// LoginResponse is the data of POST /auth/login.
type LoginResponse struct {
	SessionToken string `json:"session_token"`
	NeedsMfa     bool   `json:"needs_mfa"`
}

// TokenRequest is the body of endpoints that take only a session token.
type TokenRequest struct {
	SessionToken string `json:"session_token"`
}

// TokenResponse carries a freshly issued session token.
type TokenResponse struct {
	SessionToken string `json:"session_token"`
}

// MfaVerifyRequest is the body of POST /auth/mfa/verify.
type MfaVerifyRequest struct {
	SessionToken string `json:"session_token"`
	TotpOrCode   string `json:"totp_or_code"`
	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// MfaSetupRequest is the body of POST /auth/mfa/setup.
type MfaSetupRequest struct {
	User domain.UserReference `json:"user"`
}

// MfaSetupResponse is the data of POST /auth/mfa/setup. The seed and the
// recovery codes are shown exactly once.
type MfaSetupResponse struct {
	Secret        string   `json:"secret"`
	OTPAuthURL    string   `json:"otpauth_url"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// RecoveryCodesResponse is the data of POST /auth/mfa/reset-recovery.
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// SessionResponse represents a session in API responses. The token hash
// is never exposed.
type SessionResponse struct {
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	Restricted bool       `json:"restricted"`
	Current    bool       `json:"current"`
}

// RenewSessionRequest is the body of POST /auth/session/renew.
type RenewSessionRequest struct {
	SessionToken string `json:"session_token"`
	UserID       string `json:"user_id"`
	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// InvalidateOthersRequest is the body of POST /auth/session/invalidate-others.
type InvalidateOthersRequest struct {
	SessionToken string `json:"session_token"`
	UserID       string `json:"user_id"`
}

// InvalidateOthersResponse is the data of POST /auth/session/invalidate-others.
type InvalidateOthersResponse struct {
	Invalidated int `json:"invalidated"`
}

// ValidateSessionRequest is the body of POST /auth/session/validate.
type ValidateSessionRequest struct {
	SessionToken    string `json:"session_token"`
	UserID          string `json:"user_id,omitempty"`
	AllowRestricted bool   `json:"allow_restricted,omitempty"`
}

// ValidateSessionResponse is the data of POST /auth/session/validate.
type ValidateSessionResponse struct {
	UserID     string     `json:"user_id"`
	Restricted bool       `json:"restricted"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func sessionToResponse(s *domain.Session, currentHash string) SessionResponse {
	return SessionResponse{
		SessionID:  s.ID,
		UserID:     s.UserID,
		CreatedAt:  s.CreatedAtTime().UTC(),
		ExpiresAt:  optionalTime(s.ExpiresAt),
		RevokedAt:  optionalTime(s.RevokedAt),
		IPAddress:  s.IPAddress,
		UserAgent:  s.UserAgent,
		Restricted: s.Restricted,
		Current:    currentHash != "" && s.TokenHash == currentHash,
	}
}

func optionalTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
