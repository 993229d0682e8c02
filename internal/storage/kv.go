package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrReadOnly    = errors.New("write in read-only transaction")
	ErrClosed      = errors.New("store closed")
)

var (
	prefixSession    = []byte("s/")
	prefixToken      = []byte("t/")
	prefixUser       = []byte("u/")
	prefixCredential = []byte("c/")
	prefixLogin      = []byte("l/")
	prefixMfa        = []byte("m/")
)

func key(prefix []byte, parts ...string) []byte {
	k := append([]byte(nil), prefix...)
	for i, p := range parts {
		if i > 0 {
			k = append(k, '/')
		}
		k = append(k, p...)
	}
	return k
}

// kvTxn is the transactional key-value surface an embedded engine provides.
type kvTxn interface {
	// get returns ErrKeyNotFound for a missing key. The returned slice
	// must stay valid after the transaction ends.
	get(key []byte) ([]byte, error)
	set(key, value []byte) error
	delete(key []byte) error
	// scan calls fn for every key with prefix, in key order.
	scan(prefix []byte, fn func(key, value []byte) error) error
}

// kvTx adapts a kvTxn to service.Tx.
type kvTx struct {
	txn      kvTxn
	writable bool
}

func (t *kvTx) Sessions() service.SessionRepository       { return kvSessions{t} }
func (t *kvTx) Credentials() service.CredentialRepository { return kvCredentials{t} }
func (t *kvTx) Mfa() service.MfaRepository                { return kvMfa{t} }

func (t *kvTx) has(k []byte) (bool, error) {
	_, err := t.txn.get(k)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *kvTx) put(k []byte, v any) error {
	if !t.writable {
		return ErrReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return t.txn.set(k, data)
}

func (t *kvTx) setRaw(k, v []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	return t.txn.set(k, v)
}

func (t *kvTx) load(k []byte, v any, notFound error) error {
	data, err := t.txn.get(k)
	if errors.Is(err, ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", k, err)
	}
	return nil
}

// ============================================================================
// Sessions
// ============================================================================

type kvSessions struct{ t *kvTx }

func (r kvSessions) Create(_ context.Context, session *domain.Session) error {
	taken, err := r.t.has(key(prefixToken, session.TokenHash))
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrTokenHashConflict
	}

	if err := r.t.put(key(prefixSession, session.ID), session); err != nil {
		return err
	}
	if err := r.t.setRaw(key(prefixToken, session.TokenHash), []byte(session.ID)); err != nil {
		return err
	}
	return r.t.setRaw(key(prefixUser, session.UserID, session.ID), []byte{})
}

func (r kvSessions) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	id, err := r.t.txn.get(key(prefixToken, tokenHash))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session domain.Session
	if err := r.t.load(key(prefixSession, string(id)), &session, domain.ErrSessionNotFound); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r kvSessions) Update(_ context.Context, session *domain.Session) error {
	var existing domain.Session
	if err := r.t.load(key(prefixSession, session.ID), &existing, domain.ErrSessionNotFound); err != nil {
		return err
	}
	if existing.TokenHash != session.TokenHash || existing.UserID != session.UserID {
		return domain.ErrSessionValidation.WithDetails("token_hash and user_id are immutable")
	}
	if existing.IsRevoked() {
		stored := session.Clone()
		stored.RevokedAt = existing.RevokedAt
		session = stored
	}
	return r.t.put(key(prefixSession, session.ID), session)
}

func (r kvSessions) ListByUserID(_ context.Context, userID string) ([]*domain.Session, error) {
	prefix := key(prefixUser, userID, "")
	var ids []string
	err := r.t.txn.scan(prefix, func(k, _ []byte) error {
		ids = append(ids, string(bytes.TrimPrefix(k, prefix)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		var session domain.Session
		if err := r.t.load(key(prefixSession, id), &session, domain.ErrSessionNotFound); err != nil {
			return nil, err
		}
		result = append(result, &session)
	}
	domain.SortSessionsNewestFirst(result)
	return result, nil
}

// ============================================================================
// Credentials
// ============================================================================

type kvCredentials struct{ t *kvTx }

func (r kvCredentials) GetByLogin(ctx context.Context, login string) (*domain.Credential, error) {
	id, err := r.t.txn.get(key(prefixLogin, login))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, string(id))
}

func (r kvCredentials) GetByID(_ context.Context, userID string) (*domain.Credential, error) {
	var cred domain.Credential
	if err := r.t.load(key(prefixCredential, userID), &cred, domain.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r kvCredentials) Create(_ context.Context, cred *domain.Credential) error {
	for _, k := range [][]byte{key(prefixLogin, cred.Login), key(prefixCredential, cred.UserID)} {
		taken, err := r.t.has(k)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrUserConflict
		}
	}

	if err := r.t.put(key(prefixCredential, cred.UserID), cred); err != nil {
		return err
	}
	return r.t.setRaw(key(prefixLogin, cred.Login), []byte(cred.UserID))
}

func (r kvCredentials) Update(_ context.Context, cred *domain.Credential) error {
	var existing domain.Credential
	if err := r.t.load(key(prefixCredential, cred.UserID), &existing, domain.ErrUserNotFound); err != nil {
		return err
	}
	if existing.Login != cred.Login {
		return domain.ErrUserValidation.WithDetails("login is immutable")
	}
	return r.t.put(key(prefixCredential, cred.UserID), cred)
}

// ============================================================================
// MFA
// ============================================================================

type kvMfa struct{ t *kvTx }

func (r kvMfa) Get(_ context.Context, userID string) (*domain.MfaEnrollment, error) {
	var e domain.MfaEnrollment
	if err := r.t.load(key(prefixMfa, userID), &e, domain.ErrMfaNotEnrolled); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r kvMfa) Put(_ context.Context, enrollment *domain.MfaEnrollment) error {
	return r.t.put(key(prefixMfa, enrollment.UserID), enrollment)
}

func (r kvMfa) Delete(_ context.Context, userID string) error {
	if !r.t.writable {
		return ErrReadOnly
	}
	err := r.t.txn.delete(key(prefixMfa, userID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}
