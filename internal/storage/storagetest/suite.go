// Package storagetest holds the behaviour every service.Store backend must
// show. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
)

var errBoom = errors.New("boom")

// Run executes the backend conformance tests. newStore must return an
// empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) service.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s service.Store)
	}{
		{"SessionCreateAndGet", testSessionCreateAndGet},
		{"SessionTokenHashConflict", testSessionTokenHashConflict},
		{"SessionUpdate", testSessionUpdate},
		{"SessionKeepsFirstRevocation", testSessionKeepsFirstRevocation},
		{"SessionListNewestFirst", testSessionListNewestFirst},
		{"CredentialCRUD", testCredentialCRUD},
		{"MfaPutGetDelete", testMfaPutGetDelete},
		{"RollbackOnError", testRollbackOnError},
		{"ConcurrentRevoke", testConcurrentRevoke},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewSession builds a valid session for userID with a fresh token hash.
func NewSession(t *testing.T, userID string, createdAt int64) *domain.Session {
	t.Helper()
	s, err := domain.NewSession(userID, false)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	_, hash, err := domain.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	s.TokenHash = hash
	s.IPAddress = "192.0.2.1"
	s.UserAgent = "storagetest"
	if createdAt != 0 {
		s.CreatedAt = createdAt
	}
	s.SetExpiration(time.Hour)
	return s
}

// NewCredential builds a credential and stores it.
func NewCredential(t *testing.T, store service.Store, login string) *domain.Credential {
	t.Helper()
	cred, err := domain.NewCredential(login, "$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5")
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	err = store.Update(context.Background(), func(tx service.Tx) error {
		return tx.Credentials().Create(context.Background(), cred)
	})
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}
	return cred
}

func create(t *testing.T, store service.Store, s *domain.Session) {
	t.Helper()
	err := store.Update(context.Background(), func(tx service.Tx) error {
		return tx.Sessions().Create(context.Background(), s)
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func getByHash(t *testing.T, store service.Store, hash string) (*domain.Session, error) {
	t.Helper()
	var got *domain.Session
	err := store.View(context.Background(), func(tx service.Tx) error {
		var err error
		got, err = tx.Sessions().GetByTokenHash(context.Background(), hash)
		return err
	})
	return got, err
}

func testSessionCreateAndGet(t *testing.T, store service.Store) {
	s := NewSession(t, "u1", 0)
	s.Restricted = true
	create(t, store, s)

	got, err := getByHash(t, store, s.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if got.ID != s.ID || got.UserID != "u1" || !got.Restricted {
		t.Errorf("got %+v, want %+v", got, s)
	}
	if got.CreatedAt != s.CreatedAt || got.ExpiresAt != s.ExpiresAt {
		t.Errorf("timestamps = %d/%d, want %d/%d", got.CreatedAt, got.ExpiresAt, s.CreatedAt, s.ExpiresAt)
	}
	if got.IPAddress != s.IPAddress || got.UserAgent != s.UserAgent {
		t.Errorf("client snapshot = %q/%q, want %q/%q", got.IPAddress, got.UserAgent, s.IPAddress, s.UserAgent)
	}

	_, err = getByHash(t, store, domain.HashToken("amtk_missing"))
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("missing hash error = %v, want ErrSessionNotFound", err)
	}
}

func testSessionTokenHashConflict(t *testing.T, store service.Store) {
	first := NewSession(t, "u1", 0)
	create(t, store, first)

	// Revoke it; the hash must still be reserved.
	err := store.Update(context.Background(), func(tx service.Tx) error {
		first.Revoke(time.Now())
		return tx.Sessions().Update(context.Background(), first)
	})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}

	dup := NewSession(t, "u2", 0)
	dup.TokenHash = first.TokenHash
	err = store.Update(context.Background(), func(tx service.Tx) error {
		return tx.Sessions().Create(context.Background(), dup)
	})
	if !errors.Is(err, domain.ErrTokenHashConflict) {
		t.Fatalf("duplicate hash error = %v, want ErrTokenHashConflict", err)
	}
}

func testSessionUpdate(t *testing.T, store service.Store) {
	s := NewSession(t, "u1", 0)
	s.Restricted = true
	create(t, store, s)

	revokedAt := time.UnixMilli(s.CreatedAt + 10)
	err := store.Update(context.Background(), func(tx service.Tx) error {
		s.Revoke(revokedAt)
		return tx.Sessions().Update(context.Background(), s)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := getByHash(t, store, s.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if got.RevokedAt != revokedAt.UnixMilli() {
		t.Errorf("RevokedAt = %d, want %d", got.RevokedAt, revokedAt.UnixMilli())
	}
}

// A write from a transaction that read the session before another one
// revoked it must not move the revocation time.
func testSessionKeepsFirstRevocation(t *testing.T, store service.Store) {
	s := NewSession(t, "u1", 0)
	create(t, store, s)
	stale := s.Clone()

	first := time.UnixMilli(s.CreatedAt + 10)
	second := first.Add(time.Minute)
	for _, w := range []struct {
		session *domain.Session
		at      time.Time
	}{{s, first}, {stale, second}} {
		err := store.Update(context.Background(), func(tx service.Tx) error {
			w.session.Revoke(w.at)
			return tx.Sessions().Update(context.Background(), w.session)
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	got, err := getByHash(t, store, s.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if got.RevokedAt != first.UnixMilli() {
		t.Errorf("RevokedAt = %d, want first revocation %d", got.RevokedAt, first.UnixMilli())
	}
}

func testSessionListNewestFirst(t *testing.T, store service.Store) {
	base := time.Now().Add(-time.Hour).UnixMilli()
	var ids []string
	for i := 0; i < 4; i++ {
		s := NewSession(t, "u1", base+int64(i)*1000)
		create(t, store, s)
		ids = append(ids, s.ID)
	}
	create(t, store, NewSession(t, "u2", 0))

	// revoke the oldest; it must still be listed
	err := store.Update(context.Background(), func(tx service.Tx) error {
		list, err := tx.Sessions().ListByUserID(context.Background(), "u1")
		if err != nil {
			return err
		}
		oldest := list[len(list)-1]
		oldest.Revoke(time.Now())
		return tx.Sessions().Update(context.Background(), oldest)
	})
	if err != nil {
		t.Fatalf("revoke oldest: %v", err)
	}

	var list []*domain.Session
	err = store.View(context.Background(), func(tx service.Tx) error {
		var err error
		list, err = tx.Sessions().ListByUserID(context.Background(), "u1")
		return err
	})
	if err != nil {
		t.Fatalf("ListByUserID: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("len(list) = %d, want 4", len(list))
	}
	for i, s := range list {
		if want := ids[len(ids)-1-i]; s.ID != want {
			t.Errorf("list[%d].ID = %q, want %q", i, s.ID, want)
		}
	}
	if !list[3].IsRevoked() {
		t.Error("revoked session should still be listed")
	}
}

func testCredentialCRUD(t *testing.T, store service.Store) {
	ctx := context.Background()
	cred := NewCredential(t, store, "alice")

	err := store.Update(ctx, func(tx service.Tx) error {
		dup, _ := domain.NewCredential("alice", "digest")
		return tx.Credentials().Create(ctx, dup)
	})
	if !errors.Is(err, domain.ErrUserConflict) {
		t.Fatalf("duplicate login error = %v, want ErrUserConflict", err)
	}

	err = store.Update(ctx, func(tx service.Tx) error {
		got, err := tx.Credentials().GetByLogin(ctx, "alice")
		if err != nil {
			return err
		}
		got.MfaEnabled = true
		return tx.Credentials().Update(ctx, got)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = store.View(ctx, func(tx service.Tx) error {
		got, err := tx.Credentials().GetByID(ctx, cred.UserID)
		if err != nil {
			return err
		}
		if !got.MfaEnabled {
			return fmt.Errorf("MfaEnabled = false after update")
		}
		if got.PasswordHash != cred.PasswordHash {
			return fmt.Errorf("PasswordHash changed")
		}
		if _, err := tx.Credentials().GetByLogin(ctx, "bob"); !errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("GetByLogin(bob) error = %v, want ErrUserNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testMfaPutGetDelete(t *testing.T, store service.Store) {
	ctx := context.Background()
	_, hashes, _ := domain.GenerateRecoveryCodes(3)
	e := domain.NewMfaEnrollment("u1", "SEED", hashes)

	err := store.Update(ctx, func(tx service.Tx) error {
		return tx.Mfa().Put(ctx, e)
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	replacement := append([]string(nil), hashes[:1]...)
	err = store.Update(ctx, func(tx service.Tx) error {
		got, err := tx.Mfa().Get(ctx, "u1")
		if err != nil {
			return err
		}
		if len(got.RecoveryCodeHashes) != 3 || got.Secret != "SEED" {
			return fmt.Errorf("got %+v", got)
		}
		got.ReplaceRecoveryCodes(replacement)
		return tx.Mfa().Put(ctx, got)
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	err = store.Update(ctx, func(tx service.Tx) error {
		got, err := tx.Mfa().Get(ctx, "u1")
		if err != nil {
			return err
		}
		if len(got.RecoveryCodeHashes) != 1 {
			return fmt.Errorf("len(hashes) = %d, want 1", len(got.RecoveryCodeHashes))
		}
		if err := tx.Mfa().Delete(ctx, "u1"); err != nil {
			return err
		}
		return tx.Mfa().Delete(ctx, "u1")
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	err = store.View(ctx, func(tx service.Tx) error {
		_, err := tx.Mfa().Get(ctx, "u1")
		return err
	})
	if !errors.Is(err, domain.ErrMfaNotEnrolled) {
		t.Fatalf("Get after delete error = %v, want ErrMfaNotEnrolled", err)
	}
}

func testRollbackOnError(t *testing.T, store service.Store) {
	ctx := context.Background()
	existing := NewSession(t, "u1", 0)
	create(t, store, existing)
	_, hashes, _ := domain.GenerateRecoveryCodes(2)
	err := store.Update(ctx, func(tx service.Tx) error {
		return tx.Mfa().Put(ctx, domain.NewMfaEnrollment("u1", "SEED", hashes))
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	fresh := NewSession(t, "u1", 0)
	err = store.Update(ctx, func(tx service.Tx) error {
		if err := tx.Sessions().Create(ctx, fresh); err != nil {
			return err
		}
		existing.Revoke(time.Now())
		if err := tx.Sessions().Update(ctx, existing); err != nil {
			return err
		}
		e, err := tx.Mfa().Get(ctx, "u1")
		if err != nil {
			return err
		}
		e.ReplaceRecoveryCodes(nil)
		if err := tx.Mfa().Put(ctx, e); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Update error = %v, want errBoom", err)
	}

	if _, err := getByHash(t, store, fresh.TokenHash); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("created session survived rollback: err = %v", err)
	}
	got, err := getByHash(t, store, existing.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if got.IsRevoked() {
		t.Error("revocation survived rollback")
	}
	err = store.View(ctx, func(tx service.Tx) error {
		e, err := tx.Mfa().Get(ctx, "u1")
		if err != nil {
			return err
		}
		if len(e.RecoveryCodeHashes) != 2 {
			return fmt.Errorf("recovery codes = %d after rollback, want 2", len(e.RecoveryCodeHashes))
		}
		return nil
	})
	if err != nil {
		t.Error(err)
	}
}

// testConcurrentRevoke races transactions that each revoke the same
// session only if it is still live. Exactly one may win.
func testConcurrentRevoke(t *testing.T, store service.Store) {
	ctx := context.Background()
	s := NewSession(t, "u1", 0)
	create(t, store, s)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won := false
			err := store.Update(ctx, func(tx service.Tx) error {
				won = false
				got, err := tx.Sessions().GetByTokenHash(ctx, s.TokenHash)
				if err != nil {
					return err
				}
				if !got.Revoke(time.Now()) {
					return nil
				}
				won = true
				return tx.Sessions().Update(ctx, got)
			})
			if err != nil {
				t.Errorf("Update: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}
