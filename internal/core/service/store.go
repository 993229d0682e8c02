package service

import (
	"context"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// Store opens storage transactions.
//
// Update runs fn in a read-write transaction that commits when fn returns
// nil and rolls back every write otherwise. View runs fn against a
// read-only snapshot.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Sessions() SessionRepository
	Credentials() CredentialRepository
	Mfa() MfaRepository
}

// SessionRepository stores sessions. There is no delete: revocation is an
// update of RevokedAt.
type SessionRepository interface {
	// Create inserts a session. Returns domain.ErrTokenHashConflict if any
	// row, revoked or not, already holds the token hash.
	Create(ctx context.Context, session *domain.Session) error

	// GetByTokenHash returns domain.ErrSessionNotFound when no row matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)

	// Update overwrites an existing session.
	Update(ctx context.Context, session *domain.Session) error

	// ListByUserID returns every session of the user, revoked included,
	// newest first.
	ListByUserID(ctx context.Context, userID string) ([]*domain.Session, error)
}

// CredentialRepository stores user credentials.
type CredentialRepository interface {
	// GetByLogin returns domain.ErrUserNotFound when no row matches.
	GetByLogin(ctx context.Context, login string) (*domain.Credential, error)

	// GetByID returns domain.ErrUserNotFound when no row matches.
	GetByID(ctx context.Context, userID string) (*domain.Credential, error)

	// Create returns domain.ErrUserConflict for a duplicate login.
	Create(ctx context.Context, cred *domain.Credential) error

	Update(ctx context.Context, cred *domain.Credential) error
}

// MfaRepository stores MFA enrollments keyed by user ID.
type MfaRepository interface {
	// Get returns domain.ErrMfaNotEnrolled when the user has no enrollment.
	Get(ctx context.Context, userID string) (*domain.MfaEnrollment, error)

	// Put inserts or replaces the enrollment.
	Put(ctx context.Context, enrollment *domain.MfaEnrollment) error

	// Delete removes the enrollment. Deleting a missing one is not an error.
	Delete(ctx context.Context, userID string) error
}

// storageError wraps err as a storage failure unless it is already a
// domain error.
func storageError(err error) error {
	if err == nil || domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrStorageError.WithCause(err)
}
