package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/storage/memory"
	"github.com/yndnr/authmesh-go/pkg/crypto/password"
)

var testParams = password.Params{
	MemoryKiB:   8,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingRecorder struct {
	mu      sync.Mutex
	logins  []domain.ErrorKind
	mfa     []domain.ErrorKind
	revoked int
}

func (r *recordingRecorder) RecordLogin(kind domain.ErrorKind) {
	r.mu.Lock()
	r.logins = append(r.logins, kind)
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordMfaVerify(kind domain.ErrorKind) {
	r.mu.Lock()
	r.mfa = append(r.mfa, kind)
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordSessionsRevoked(n int) {
	r.mu.Lock()
	r.revoked += n
	r.mu.Unlock()
}

type testEnv struct {
	store    *memory.Store
	hasher   *password.Hasher
	creds    *service.CredentialVerifier
	sessions *service.SessionManager
	mfa      *service.MfaManager
	attempts *service.AttemptLimiter
	svc      *service.AuthService
	clock    *fakeClock
	recorder *recordingRecorder
}

func newTestEnv(t *testing.T, sealer service.SecretSealer) *testEnv {
	t.Helper()

	hasher, err := password.New(testParams)
	if err != nil {
		t.Fatalf("password.New: %v", err)
	}

	env := &testEnv{
		store:    memory.New(),
		hasher:   hasher,
		clock:    newFakeClock(),
		recorder: &recordingRecorder{},
	}
	logger := discardLogger()

	env.creds = service.NewCredentialVerifier(hasher, logger)
	env.sessions = service.NewSessionManager(service.DefaultSessionConfig(), logger)
	env.sessions.SetNow(env.clock.Now)
	env.attempts = service.NewAttemptLimiter(service.DefaultAttemptPolicy())
	env.attempts.SetNow(env.clock.Now)
	env.mfa = service.NewMfaManager(service.DefaultMfaConfig(), env.sessions, sealer, env.attempts, logger)
	env.mfa.SetNow(env.clock.Now)
	env.svc = service.NewAuthService(env.store, env.creds, env.sessions, env.mfa,
		service.WithRecorder(env.recorder), service.WithLogger(logger))
	return env
}

func (e *testEnv) createUser(t *testing.T, login, pw string) *domain.Credential {
	t.Helper()
	cred, err := e.svc.CreateUser(context.Background(), &service.CreateUserRequest{Login: login, Password: pw})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", login, err)
	}
	return cred
}

// update runs fn in one read-write transaction and fails the test on error.
func (e *testEnv) update(t *testing.T, fn func(tx service.Tx) error) {
	t.Helper()
	if err := e.store.Update(context.Background(), fn); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

// newSession creates a session directly through the SessionManager.
func (e *testEnv) newSession(t *testing.T, userID string, restricted bool) *service.CreateSessionResponse {
	t.Helper()
	var resp *service.CreateSessionResponse
	e.update(t, func(tx service.Tx) error {
		var err error
		resp, err = e.sessions.Create(context.Background(), tx, &service.CreateSessionRequest{
			UserID:     userID,
			IPAddress:  "192.0.2.1",
			UserAgent:  "test-agent/1.0",
			Restricted: restricted,
		})
		return err
	})
	return resp
}

func (e *testEnv) verify(token, userID string) (*domain.Session, error) {
	var session *domain.Session
	err := e.store.View(context.Background(), func(tx service.Tx) error {
		var err error
		session, err = e.sessions.Verify(context.Background(), tx, &service.VerifySessionRequest{Token: token, UserID: userID})
		return err
	})
	return session, err
}
