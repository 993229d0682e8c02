package domain

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/yndnr/authmesh-go/pkg/token"
)

const (
	// RecoveryCodeHashPrefix is the prefix for stored recovery code hashes.
	RecoveryCodeHashPrefix = "amrc_"

	// DefaultRecoveryCodeCount is the batch size issued by setup and reset.
	DefaultRecoveryCodeCount = 12

	// MaxRecoveryCodeCount bounds a configured batch size.
	MaxRecoveryCodeCount = 64

	recoveryCodeBytes = 7 // 56 bits -> 12 base32 chars, 10 used
	recoveryGroupLen  = 5
)

var recoveryEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// MfaEnrollment is a user's second factor.
//
// Secret holds the TOTP seed in its stored form (sealed when an encryption
// key is configured). Recovery codes are kept only as hashes.
type MfaEnrollment struct {
	UserID             string   `json:"user_id"`
	Secret             string   `json:"secret"`
	RecoveryCodeHashes []string `json:"recovery_code_hashes"`
	CreatedAt          int64    `json:"created_at"`
	UpdatedAt          int64    `json:"updated_at"`
}

// NewMfaEnrollment creates an enrollment for userID.
func NewMfaEnrollment(userID, storedSecret string, recoveryHashes []string) *MfaEnrollment {
	now := time.Now().UnixMilli()
	return &MfaEnrollment{
		UserID:             userID,
		Secret:             storedSecret,
		RecoveryCodeHashes: recoveryHashes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Validate validates the enrollment fields.
func (e *MfaEnrollment) Validate() error {
	var violations []string

	if e.UserID == "" {
		violations = append(violations, "user_id is required")
	}
	if e.Secret == "" {
		violations = append(violations, "secret is required")
	}
	if len(e.RecoveryCodeHashes) > MaxRecoveryCodeCount {
		violations = append(violations, "too many recovery codes")
	}
	for _, h := range e.RecoveryCodeHashes {
		if !strings.HasPrefix(h, RecoveryCodeHashPrefix) {
			violations = append(violations, "recovery code hash is malformed")
			break
		}
	}

	if len(violations) > 0 {
		return ErrMfaValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// ConsumeRecoveryCode removes the hash matching code and reports whether one
// matched. Every stored hash is compared so timing does not depend on which
// slot matched.
func (e *MfaEnrollment) ConsumeRecoveryCode(code string) bool {
	candidate := HashRecoveryCode(code)
	idx := -1
	for i, h := range e.RecoveryCodeHashes {
		if token.Equal(candidate, h) && idx < 0 {
			idx = i
		}
	}
	if idx < 0 {
		return false
	}

	remaining := make([]string, 0, len(e.RecoveryCodeHashes)-1)
	remaining = append(remaining, e.RecoveryCodeHashes[:idx]...)
	remaining = append(remaining, e.RecoveryCodeHashes[idx+1:]...)
	e.RecoveryCodeHashes = remaining
	e.UpdatedAt = time.Now().UnixMilli()
	return true
}

// ReplaceRecoveryCodes swaps the whole recovery set.
func (e *MfaEnrollment) ReplaceRecoveryCodes(hashes []string) {
	e.RecoveryCodeHashes = hashes
	e.UpdatedAt = time.Now().UnixMilli()
}

// Clone creates a deep copy of the enrollment.
func (e *MfaEnrollment) Clone() *MfaEnrollment {
	clone := *e
	clone.RecoveryCodeHashes = append([]string(nil), e.RecoveryCodeHashes...)
	return &clone
}

// GenerateRecoveryCodes returns n fresh codes in XXXXX-XXXXX form together
// with their hashes, index-aligned.
func GenerateRecoveryCodes(n int) (codes []string, hashes []string, err error) {
	if n <= 0 || n > MaxRecoveryCodeCount {
		return nil, nil, ErrInvalidArgument.WithDetails("recovery code count out of range")
	}

	codes = make([]string, n)
	hashes = make([]string, n)
	buf := make([]byte, recoveryCodeBytes)
	for i := 0; i < n; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, ErrInternalServer.WithCause(err)
		}
		raw := recoveryEncoding.EncodeToString(buf)
		codes[i] = raw[:recoveryGroupLen] + "-" + raw[recoveryGroupLen:2*recoveryGroupLen]
		hashes[i] = HashRecoveryCode(codes[i])
	}
	return codes, hashes, nil
}

// HashRecoveryCode hashes a recovery code after trimming surrounding space
// and upper-casing it.
func HashRecoveryCode(code string) string {
	return token.Digest(RecoveryCodeHashPrefix, strings.ToUpper(strings.TrimSpace(code)))
}

// LooksLikeRecoveryCode reports whether input has the recovery code shape.
func LooksLikeRecoveryCode(input string) bool {
	s := strings.TrimSpace(input)
	return len(s) == 2*recoveryGroupLen+1 && s[recoveryGroupLen] == '-'
}
