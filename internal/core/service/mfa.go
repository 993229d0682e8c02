package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/pkg/crypto/adaptive"
)

// SecretSealer protects TOTP seeds at rest. The user ID is bound as
// associated data so a sealed seed cannot be moved to another user.
type SecretSealer interface {
	Seal(plaintext, aad []byte) (string, error)
	Open(sealed string, aad []byte) ([]byte, error)
}

// MfaConfig configures TOTP enrollment and verification.
type MfaConfig struct {
	Issuer            string
	RecoveryCodeCount int
	// Period is the TOTP step in seconds.
	Period uint
	// Skew is the number of steps accepted on each side of the current one.
	Skew uint
}

// DefaultMfaConfig returns SHA1/6-digit/30s TOTP with one step of skew and
// twelve recovery codes.
func DefaultMfaConfig() MfaConfig {
	return MfaConfig{
		Issuer:            "authmesh",
		RecoveryCodeCount: domain.DefaultRecoveryCodeCount,
		Period:            30,
		Skew:              1,
	}
}

// MfaManager owns MFA enrollment and second-factor verification.
type MfaManager struct {
	cfg      MfaConfig
	sessions *SessionManager
	sealer   SecretSealer
	attempts *AttemptLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewMfaManager creates an MfaManager. A nil sealer stores seeds as-is;
// a nil limiter disables lockout.
func NewMfaManager(cfg MfaConfig, sessions *SessionManager, sealer SecretSealer, attempts *AttemptLimiter, logger *slog.Logger) *MfaManager {
	def := DefaultMfaConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.RecoveryCodeCount <= 0 {
		cfg.RecoveryCodeCount = def.RecoveryCodeCount
	}
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MfaManager{
		cfg:      cfg,
		sessions: sessions,
		sealer:   sealer,
		attempts: attempts,
		logger:   logger.With("component", "mfa_manager"),
		now:      time.Now,
	}
}

func (m *MfaManager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    m.cfg.Period,
		Skew:      m.cfg.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// ============================================================================
// Setup
// ============================================================================

// SetupMfaResponse is shown to the user exactly once.
type SetupMfaResponse struct {
	Secret        string
	OTPAuthURL    string
	RecoveryCodes []string
}

// Setup generates a seed and a batch of recovery codes, replaces any prior
// enrollment and marks the credential as MFA-enabled.
func (m *MfaManager) Setup(ctx context.Context, tx Tx, cred *domain.Credential) (*SetupMfaResponse, error) {
	// 1. Generate the seed
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: cred.Login,
		Period:      m.cfg.Period,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	// 2. Generate recovery codes
	codes, hashes, err := domain.GenerateRecoveryCodes(m.cfg.RecoveryCodeCount)
	if err != nil {
		return nil, err
	}

	// 3. Store the enrollment
	stored, err := m.sealSecret(key.Secret(), cred.UserID)
	if err != nil {
		return nil, err
	}
	enrollment := domain.NewMfaEnrollment(cred.UserID, stored, hashes)
	if err := enrollment.Validate(); err != nil {
		return nil, err
	}
	if err := tx.Mfa().Put(ctx, enrollment); err != nil {
		return nil, storageError(err)
	}

	// 4. Flag the credential
	if !cred.MfaEnabled {
		cred.MfaEnabled = true
		cred.UpdatedAt = m.now().UnixMilli()
		if err := tx.Credentials().Update(ctx, cred); err != nil {
			return nil, storageError(err)
		}
	}

	return &SetupMfaResponse{
		Secret:        key.Secret(),
		OTPAuthURL:    key.URL(),
		RecoveryCodes: codes,
	}, nil
}

// ============================================================================
// Verify
// ============================================================================

// VerifyMfaRequest contains parameters for second-factor verification.
type VerifyMfaRequest struct {
	Token string // Restricted session token
	Code  string // TOTP code or recovery code
}

// Verify checks a TOTP or recovery code for the user behind a restricted
// session and returns that session. A matching recovery code is consumed
// in tx. Failures count towards the lockout; a success does not reset it,
// see ResetFailures.
//
// The session is not renewed here; callers follow up with
// SessionManager.Renew in the same transaction.
func (m *MfaManager) Verify(ctx context.Context, tx Tx, req *VerifyMfaRequest) (*domain.Session, error) {
	// 1. Resolve the restricted session
	session, err := m.sessions.Verify(ctx, tx, &VerifySessionRequest{Token: req.Token})
	if err != nil {
		return nil, err
	}
	if !session.Restricted {
		return nil, domain.ErrSessionInvalid.WithDetails("session is not awaiting mfa")
	}
	userID := session.UserID

	// 2. Lockout
	if m.attempts != nil {
		if blocked, retryAfter := m.attempts.Check(userID); blocked {
			m.logger.WarnContext(ctx, "mfa verification while locked out",
				"user_id", userID, "retry_after", retryAfter)
			return nil, &domain.LockedError{RetryAfter: retryAfter}
		}
	}

	// 3. Load the enrollment
	enrollment, err := tx.Mfa().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrMfaNotEnrolled) {
			return nil, domain.ErrMfaInvalid
		}
		return nil, storageError(err)
	}

	// 4. Recovery code or TOTP, by shape
	code := strings.TrimSpace(req.Code)
	switch {
	case code == "":
	case domain.LooksLikeRecoveryCode(code):
		if enrollment.ConsumeRecoveryCode(code) {
			if err := tx.Mfa().Put(ctx, enrollment); err != nil {
				return nil, storageError(err)
			}
			m.logger.InfoContext(ctx, "recovery code consumed",
				"user_id", userID, "remaining", len(enrollment.RecoveryCodeHashes))
			return session, nil
		}
	default:
		secret, err := m.openSecret(enrollment.Secret, userID)
		if err != nil {
			return nil, err
		}
		if ok, _ := totp.ValidateCustom(code, secret, m.now().UTC(), m.validateOpts()); ok {
			return session, nil
		}
	}

	if m.attempts != nil {
		m.attempts.RecordFailure(userID)
	}
	return nil, domain.ErrMfaInvalid
}

// ResetFailures clears the lockout counter of userID. Callers invoke it
// once the transaction that accepted the code has committed.
func (m *MfaManager) ResetFailures(userID string) {
	if m.attempts != nil {
		m.attempts.RecordSuccess(userID)
	}
}

// ============================================================================
// Disable and Reset
// ============================================================================

// Disable deletes the enrollment and clears the credential flag. Disabling
// a user without enrollment is a no-op. Existing sessions are untouched.
func (m *MfaManager) Disable(ctx context.Context, tx Tx, userID string) error {
	if err := tx.Mfa().Delete(ctx, userID); err != nil {
		return storageError(err)
	}

	cred, err := tx.Credentials().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return storageError(err)
	}
	if !cred.MfaEnabled {
		return nil
	}
	cred.MfaEnabled = false
	cred.UpdatedAt = m.now().UnixMilli()
	return storageError(tx.Credentials().Update(ctx, cred))
}

// ResetRecoveryCodes replaces the whole recovery set and returns the new
// plaintext codes. Fails with domain.ErrMfaNotEnrolled without enrollment.
func (m *MfaManager) ResetRecoveryCodes(ctx context.Context, tx Tx, userID string) ([]string, error) {
	enrollment, err := tx.Mfa().Get(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}

	codes, hashes, err := domain.GenerateRecoveryCodes(m.cfg.RecoveryCodeCount)
	if err != nil {
		return nil, err
	}
	enrollment.ReplaceRecoveryCodes(hashes)
	if err := tx.Mfa().Put(ctx, enrollment); err != nil {
		return nil, storageError(err)
	}
	return codes, nil
}

// ============================================================================
// Seed sealing
// ============================================================================

func (m *MfaManager) sealSecret(secret, userID string) (string, error) {
	if m.sealer == nil {
		return secret, nil
	}
	sealed, err := m.sealer.Seal([]byte(secret), []byte(userID))
	if err != nil {
		return "", domain.ErrInternalServer.WithCause(err)
	}
	return sealed, nil
}

func (m *MfaManager) openSecret(stored, userID string) (string, error) {
	if m.sealer == nil {
		return stored, nil
	}
	plain, err := m.sealer.Open(stored, []byte(userID))
	if errors.Is(err, adaptive.ErrNotSealed) {
		// enrolled before an encryption key was configured
		return stored, nil
	}
	if err != nil {
		m.logger.Error("cannot open stored totp seed", "user_id", userID, "error", err)
		return "", domain.ErrInternalServer.WithCause(err)
	}
	return string(plain), nil
}
