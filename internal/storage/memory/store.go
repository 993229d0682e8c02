package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/pkg/cmap"
)

// ErrReadOnly is returned by writes inside View.
var ErrReadOnly = errors.New("memory: write in read-only transaction")

// Store is an in-memory service.Store.
type Store struct {
	mu sync.RWMutex

	// Primary index: SessionID -> Session
	sessions *cmap.Map[string, *domain.Session]
	// Secondary index: TokenHash -> SessionID
	tokens *cmap.Map[string, string]
	// Secondary index: UserID -> set of SessionIDs
	userIndex userIndex

	// UserID -> Credential, login -> UserID
	credentials *cmap.Map[string, *domain.Credential]
	logins      *cmap.Map[string, string]

	// UserID -> MfaEnrollment
	mfa *cmap.Map[string, *domain.MfaEnrollment]
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions:    cmap.New[string, *domain.Session](),
		tokens:      cmap.New[string, string](),
		userIndex:   newUserIndex(),
		credentials: cmap.New[string, *domain.Credential](),
		logins:      cmap.New[string, string](),
		mfa:         cmap.New[string, *domain.MfaEnrollment](),
	}
}

// Update runs fn in a serialised read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txn{store: s, writable: true}
	committed := false
	defer func() {
		// also runs when fn panics
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&txn{store: s})
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// SessionCount returns the number of stored sessions, revoked included.
func (s *Store) SessionCount() int {
	return s.sessions.Count()
}

// UserCount returns the number of users with at least one stored session.
func (s *Store) UserCount() int {
	return s.userIndex.users()
}

// txn is one transaction. Not safe for concurrent use.
type txn struct {
	store    *Store
	writable bool
	undo     []func()
}

func (t *txn) Sessions() service.SessionRepository       { return sessionRepo{t} }
func (t *txn) Credentials() service.CredentialRepository { return credentialRepo{t} }
func (t *txn) Mfa() service.MfaRepository                { return mfaRepo{t} }

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *txn) checkWritable() error {
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

// restore returns an undo step that puts the previous value of key back,
// or deletes key if it had none.
func restore[V any](m *cmap.Map[string, V], key string) func() {
	prev, existed := m.Get(key)
	return func() {
		if existed {
			m.Set(key, prev)
		} else {
			m.Delete(key)
		}
	}
}

// ============================================================================
// Sessions
// ============================================================================

type sessionRepo struct{ t *txn }

func (r sessionRepo) Create(_ context.Context, session *domain.Session) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	st := r.t.store

	if st.tokens.Has(session.TokenHash) {
		return domain.ErrTokenHashConflict
	}
	if st.sessions.Has(session.ID) {
		return domain.ErrStorageError.WithDetails("duplicate session id")
	}

	st.sessions.Set(session.ID, session.Clone())
	st.tokens.Set(session.TokenHash, session.ID)
	st.userIndex.add(session.UserID, session.ID)

	r.t.undo = append(r.t.undo, func() {
		st.sessions.Delete(session.ID)
		st.tokens.Delete(session.TokenHash)
		st.userIndex.remove(session.UserID, session.ID)
	})
	return nil
}

func (r sessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	st := r.t.store
	id, ok := st.tokens.Get(tokenHash)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session, ok := st.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (r sessionRepo) Update(_ context.Context, session *domain.Session) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	st := r.t.store

	existing, ok := st.sessions.Get(session.ID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if existing.TokenHash != session.TokenHash || existing.UserID != session.UserID {
		return domain.ErrSessionValidation.WithDetails("token_hash and user_id are immutable")
	}

	stored := session.Clone()
	if existing.IsRevoked() {
		stored.RevokedAt = existing.RevokedAt
	}
	r.t.undo = append(r.t.undo, restore(st.sessions, session.ID))
	st.sessions.Set(session.ID, stored)
	return nil
}

func (r sessionRepo) ListByUserID(_ context.Context, userID string) ([]*domain.Session, error) {
	st := r.t.store
	ids := st.userIndex.ids(userID)

	result := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		if session, ok := st.sessions.Get(id); ok {
			result = append(result, session.Clone())
		}
	}
	domain.SortSessionsNewestFirst(result)
	return result, nil
}

// ============================================================================
// Credentials
// ============================================================================

type credentialRepo struct{ t *txn }

func (r credentialRepo) GetByLogin(_ context.Context, login string) (*domain.Credential, error) {
	st := r.t.store
	id, ok := st.logins.Get(login)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cred, ok := st.credentials.Get(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cred.Clone(), nil
}

func (r credentialRepo) GetByID(_ context.Context, userID string) (*domain.Credential, error) {
	cred, ok := r.t.store.credentials.Get(userID)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cred.Clone(), nil
}

func (r credentialRepo) Create(_ context.Context, cred *domain.Credential) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	st := r.t.store

	if st.logins.Has(cred.Login) || st.credentials.Has(cred.UserID) {
		return domain.ErrUserConflict
	}

	st.credentials.Set(cred.UserID, cred.Clone())
	st.logins.Set(cred.Login, cred.UserID)
	r.t.undo = append(r.t.undo, func() {
		st.credentials.Delete(cred.UserID)
		st.logins.Delete(cred.Login)
	})
	return nil
}

func (r credentialRepo) Update(_ context.Context, cred *domain.Credential) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	st := r.t.store

	existing, ok := st.credentials.Get(cred.UserID)
	if !ok {
		return domain.ErrUserNotFound
	}
	if existing.Login != cred.Login {
		return domain.ErrUserValidation.WithDetails("login is immutable")
	}

	r.t.undo = append(r.t.undo, restore(st.credentials, cred.UserID))
	st.credentials.Set(cred.UserID, cred.Clone())
	return nil
}

// ============================================================================
// MFA
// ============================================================================

type mfaRepo struct{ t *txn }

func (r mfaRepo) Get(_ context.Context, userID string) (*domain.MfaEnrollment, error) {
	enrollment, ok := r.t.store.mfa.Get(userID)
	if !ok {
		return nil, domain.ErrMfaNotEnrolled
	}
	return enrollment.Clone(), nil
}

func (r mfaRepo) Put(_ context.Context, enrollment *domain.MfaEnrollment) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	st := r.t.store

	r.t.undo = append(r.t.undo, restore(st.mfa, enrollment.UserID))
	st.mfa.Set(enrollment.UserID, enrollment.Clone())
	return nil
}

func (r mfaRepo) Delete(_ context.Context, userID string) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	st := r.t.store

	if !st.mfa.Has(userID) {
		return nil
	}
	r.t.undo = append(r.t.undo, restore(st.mfa, userID))
	st.mfa.Delete(userID)
	return nil
}
