package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/pkg/crypto/password"
)

// recordingHasher remembers which digests were compared.
type recordingHasher struct {
	service.PasswordHasher
	compared []string
}

func (h *recordingHasher) Verify(password, digest string) (bool, error) {
	h.compared = append(h.compared, digest)
	return h.PasswordHasher.Verify(password, digest)
}

func TestCredentialVerifier_AuthenticatePassword(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.createUser(t, "Alice@Example.com", "correct horse")
	bob, err := env.svc.CreateUser(context.Background(), &service.CreateUserRequest{
		Login: "bob", Password: "battery staple", MfaEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	hasher := &recordingHasher{PasswordHasher: env.hasher}
	verifier := service.NewCredentialVerifier(hasher, discardLogger())

	tests := []struct {
		name         string
		login        string
		password     string
		wantUser     string
		wantMfa      bool
		wantErr      bool
		wantCompared string
	}{
		{"match", "alice@example.com", "correct horse", alice.UserID, false, false, alice.PasswordHash},
		{"login is normalised", "  ALICE@example.com ", "correct horse", alice.UserID, false, false, alice.PasswordHash},
		{"mfa flag", "bob", "battery staple", bob.UserID, true, false, bob.PasswordHash},
		{"wrong password", "alice@example.com", "wrong", "", false, true, alice.PasswordHash},
		{"empty password", "alice@example.com", "", "", false, true, alice.PasswordHash},
		{"unknown user", "mallory", "correct horse", "", false, true, env.hasher.DummyDigest()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasher.compared = nil
			var resp *service.AuthenticatePasswordResponse
			err := env.store.View(context.Background(), func(tx service.Tx) error {
				var err error
				resp, err = verifier.AuthenticatePassword(context.Background(), tx,
					&service.AuthenticatePasswordRequest{Login: tt.login, Password: tt.password})
				return err
			})

			if len(hasher.compared) != 1 || hasher.compared[0] != tt.wantCompared {
				t.Errorf("compared %d digests, want exactly one against the expected digest", len(hasher.compared))
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidAuthentication) {
					t.Errorf("error = %v, want ErrInvalidAuthentication", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if resp.UserID != tt.wantUser || resp.NeedsMfa != tt.wantMfa {
				t.Errorf("got %+v, want user %s mfa %v", resp, tt.wantUser, tt.wantMfa)
			}
		})
	}
}

func TestCredentialVerifier_AuthenticatePassword_CorruptDigest(t *testing.T) {
	env := newTestEnv(t, nil)
	cred, err := domain.NewCredential("carol", "not-a-phc-string")
	if err != nil {
		t.Fatal(err)
	}
	env.update(t, func(tx service.Tx) error {
		return tx.Credentials().Create(context.Background(), cred)
	})

	err = env.store.View(context.Background(), func(tx service.Tx) error {
		_, err := env.creds.AuthenticatePassword(context.Background(), tx,
			&service.AuthenticatePasswordRequest{Login: "carol", Password: "x"})
		return err
	})
	if !errors.Is(err, domain.ErrInternalServer) {
		t.Fatalf("error = %v, want ErrInternalServer", err)
	}
}

func TestCredentialVerifier_CreateUser(t *testing.T) {
	env := newTestEnv(t, nil)
	cred := env.createUser(t, " Dave ", "pw")

	if cred.Login != "dave" {
		t.Errorf("Login = %q, want dave", cred.Login)
	}
	if cred.PasswordHash == "pw" || cred.PasswordHash == "" {
		t.Error("password stored in clear")
	}

	tests := []struct {
		name string
		req  service.CreateUserRequest
		want error
	}{
		{"duplicate", service.CreateUserRequest{Login: "DAVE", Password: "pw"}, domain.ErrUserConflict},
		{"no login", service.CreateUserRequest{Login: "  ", Password: "pw"}, domain.ErrMissingArgument},
		{"no password", service.CreateUserRequest{Login: "erin"}, domain.ErrMissingArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateUser(context.Background(), &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateUser() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCredentialVerifier_ResolveUser(t *testing.T) {
	env := newTestEnv(t, nil)
	cred := env.createUser(t, "frank", "pw")

	tests := []struct {
		name string
		ref  domain.UserReference
		want error
	}{
		{"by id", domain.UserReference{ID: cred.UserID}, nil},
		{"by login", domain.UserReference{Login: "FRANK"}, nil},
		{"unknown id", domain.UserReference{ID: "amus-missing"}, domain.ErrUserNotFound},
		{"unknown login", domain.UserReference{Login: "grace"}, domain.ErrUserNotFound},
		{"empty", domain.UserReference{}, domain.ErrMissingArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *domain.Credential
			err := env.store.View(context.Background(), func(tx service.Tx) error {
				var err error
				got, err = env.creds.ResolveUser(context.Background(), tx, tt.ref)
				return err
			})
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Errorf("ResolveUser() error = %v, want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveUser() error = %v", err)
			}
			if got.UserID != cred.UserID {
				t.Errorf("UserID = %s, want %s", got.UserID, cred.UserID)
			}
		})
	}
}

func TestCredentialVerifier_RehashesOldDigest(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.createUser(t, "alice", "correct horse")

	stronger := testParams
	stronger.Iterations++
	hasher, err := password.New(stronger)
	if err != nil {
		t.Fatal(err)
	}
	verifier := service.NewCredentialVerifier(hasher, discardLogger())

	err = env.store.Update(context.Background(), func(tx service.Tx) error {
		_, err := verifier.AuthenticatePassword(context.Background(), tx,
			&service.AuthenticatePasswordRequest{Login: "alice", Password: "correct horse"})
		return err
	})
	if err != nil {
		t.Fatalf("AuthenticatePassword() error = %v", err)
	}

	var stored *domain.Credential
	_ = env.store.View(context.Background(), func(tx service.Tx) error {
		stored, err = tx.Credentials().GetByID(context.Background(), alice.UserID)
		return err
	})
	if stored.PasswordHash == alice.PasswordHash {
		t.Fatal("digest was not upgraded")
	}
	if hasher.NeedsRehash(stored.PasswordHash) {
		t.Error("upgraded digest still uses the old params")
	}
	if ok, _ := hasher.Verify("correct horse", stored.PasswordHash); !ok {
		t.Error("upgraded digest does not verify")
	}
}
