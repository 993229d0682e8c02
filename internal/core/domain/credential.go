package domain

import (
	"strings"
	"time"
)

const (
	// UserIDPrefix is the prefix for user IDs.
	UserIDPrefix = "amus-"

	// MaxLoginLength bounds the login identifier.
	MaxLoginLength = 256
)

// Credential is a user's login record.
//
// PasswordHash must never be logged or returned by any API.
type Credential struct {
	UserID       string `json:"user_id"`
	Login        string `json:"login"`
	PasswordHash string `json:"password_hash"`
	MfaEnabled   bool   `json:"mfa_enabled"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// NewCredential creates a credential with a generated user ID.
func NewCredential(login, passwordHash string) (*Credential, error) {
	id, err := generateID(UserIDPrefix)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	return &Credential{
		UserID:       id,
		Login:        NormalizeLogin(login),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeLogin lowercases and trims a login identifier.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// Validate validates the credential fields.
func (c *Credential) Validate() error {
	var violations []string

	if c.UserID == "" {
		violations = append(violations, "user_id is required")
	}
	if len(c.UserID) > MaxUserIDLength {
		violations = append(violations, "user_id exceeds 128 characters")
	}
	if c.Login == "" {
		violations = append(violations, "login is required")
	}
	if len(c.Login) > MaxLoginLength {
		violations = append(violations, "login exceeds 256 characters")
	}
	if c.PasswordHash == "" {
		violations = append(violations, "password_hash is required")
	}

	if len(violations) > 0 {
		return ErrUserValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the credential.
func (c *Credential) Clone() *Credential {
	clone := *c
	return &clone
}

// UserReference names a user either by ID or by login.
type UserReference struct {
	ID    string `json:"id,omitempty"`
	Login string `json:"login,omitempty"`
}

// IsZero reports whether neither field is set.
func (r UserReference) IsZero() bool {
	return r.ID == "" && r.Login == ""
}
