package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// PasswordHasher is the opaque password primitive.
// Verify must compare in constant time.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
	DummyDigest() string
	// NeedsRehash reports whether digest was made with other cost params.
	NeedsRehash(digest string) bool
}

// CredentialVerifier checks login attempts against stored credentials.
type CredentialVerifier struct {
	hasher PasswordHasher
	logger *slog.Logger
}

// NewCredentialVerifier creates a CredentialVerifier.
func NewCredentialVerifier(hasher PasswordHasher, logger *slog.Logger) *CredentialVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialVerifier{
		hasher: hasher,
		logger: logger.With("component", "credential_verifier"),
	}
}

// AuthenticatePasswordRequest contains parameters for a password check.
type AuthenticatePasswordRequest struct {
	Login    string
	Password string
}

// AuthenticatePasswordResponse contains the result of a password check.
type AuthenticatePasswordResponse struct {
	UserID   string
	NeedsMfa bool
}

// AuthenticatePassword verifies a login and password.
//
// An unknown login, an empty password and a wrong password all return
// domain.ErrInvalidAuthentication after one digest comparison, so the
// three cases take the same code path.
func (v *CredentialVerifier) AuthenticatePassword(ctx context.Context, tx Tx, req *AuthenticatePasswordRequest) (*AuthenticatePasswordResponse, error) {
	// 1. Look up the credential
	cred, err := tx.Credentials().GetByLogin(ctx, domain.NormalizeLogin(req.Login))
	found := err == nil
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, storageError(err)
	}

	// 2. Compare against the stored digest or the dummy one
	digest := v.hasher.DummyDigest()
	if found {
		digest = cred.PasswordHash
	}
	match, err := v.hasher.Verify(req.Password, digest)
	if err != nil {
		v.logger.ErrorContext(ctx, "stored password digest is unusable", "error", err)
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	// 3. Decide
	if !found || req.Password == "" || !match {
		return nil, domain.ErrInvalidAuthentication
	}

	// 4. Upgrade digests made with older cost params
	if v.hasher.NeedsRehash(cred.PasswordHash) {
		v.rehash(ctx, tx, cred, req.Password)
	}

	return &AuthenticatePasswordResponse{
		UserID:   cred.UserID,
		NeedsMfa: cred.MfaEnabled,
	}, nil
}

// rehash stores a digest made with the current params. Failure is logged
// and the login goes ahead with the old digest.
func (v *CredentialVerifier) rehash(ctx context.Context, tx Tx, cred *domain.Credential, password string) {
	digest, err := v.hasher.Hash(password)
	if err == nil {
		upgraded := cred.Clone()
		upgraded.PasswordHash = digest
		upgraded.UpdatedAt = time.Now().UnixMilli()
		err = tx.Credentials().Update(ctx, upgraded)
	}
	if err != nil {
		v.logger.WarnContext(ctx, "password rehash failed", "user_id", cred.UserID, "error", err)
		return
	}
	v.logger.InfoContext(ctx, "password digest upgraded", "user_id", cred.UserID)
}

// CreateUserRequest contains parameters for provisioning a credential.
type CreateUserRequest struct {
	Login      string
	Password   string
	MfaEnabled bool
}

// CreateUser hashes the password and stores a new credential.
// MfaEnabled only marks the flag; enrollment happens through MfaManager.Setup.
func (v *CredentialVerifier) CreateUser(ctx context.Context, tx Tx, req *CreateUserRequest) (*domain.Credential, error) {
	if domain.NormalizeLogin(req.Login) == "" {
		return nil, domain.ErrMissingArgument.WithDetails("login is required")
	}
	if req.Password == "" {
		return nil, domain.ErrMissingArgument.WithDetails("password is required")
	}

	digest, err := v.hasher.Hash(req.Password)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	cred, err := domain.NewCredential(req.Login, digest)
	if err != nil {
		return nil, err
	}
	cred.MfaEnabled = req.MfaEnabled
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	if err := tx.Credentials().Create(ctx, cred); err != nil {
		return nil, storageError(err)
	}
	return cred, nil
}

// ResolveUser finds a credential by ID or login.
func (v *CredentialVerifier) ResolveUser(ctx context.Context, tx Tx, ref domain.UserReference) (*domain.Credential, error) {
	if ref.IsZero() {
		return nil, domain.ErrMissingArgument.WithDetails("user id or login is required")
	}

	var (
		cred *domain.Credential
		err  error
	)
	if ref.ID != "" {
		cred, err = tx.Credentials().GetByID(ctx, ref.ID)
	} else {
		cred, err = tx.Credentials().GetByLogin(ctx, domain.NormalizeLogin(ref.Login))
	}
	if err != nil {
		return nil, storageError(err)
	}
	return cred, nil
}
