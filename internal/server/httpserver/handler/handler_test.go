package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/storage/memory"
	"github.com/yndnr/authmesh-go/pkg/crypto/password"
)

type testServer struct {
	t    *testing.T
	svc  *service.AuthService
	h    *Handler
	mux  *http.ServeMux
	logs *bytes.Buffer
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Details   string          `json:"details"`
}

func newTestServer(t *testing.T, store service.Store) *testServer {
	t.Helper()
	if store == nil {
		store = memory.New()
	}

	hasher, err := password.New(password.Params{MemoryKiB: 8, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("password.New: %v", err)
	}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	sessions := service.NewSessionManager(service.DefaultSessionConfig(), logger)
	mfa := service.NewMfaManager(service.DefaultMfaConfig(), sessions, nil, service.NewAttemptLimiter(service.DefaultAttemptPolicy()), logger)
	svc := service.NewAuthService(store, service.NewCredentialVerifier(hasher, logger), sessions, mfa, service.WithLogger(logger))

	h := New(svc, logger)
	mux := http.NewServeMux()
	for pattern, fn := range h.Routes() {
		mux.HandleFunc(pattern, fn)
	}
	for pattern, fn := range h.HealthRoutes() {
		mux.HandleFunc(pattern, fn)
	}
	return &testServer{t: t, svc: svc, h: h, mux: mux, logs: logs}
}

func (s *testServer) do(method, path string, body any, header http.Header) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "203.0.113.9:41000"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: decode envelope %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, env
}

func (s *testServer) createUser(login, pw string) *domain.Credential {
	s.t.Helper()
	cred, err := s.svc.CreateUser(context.Background(), &service.CreateUserRequest{Login: login, Password: pw})
	if err != nil {
		s.t.Fatalf("CreateUser: %v", err)
	}
	return cred
}

func (s *testServer) login(login, pw string) LoginResponse {
	s.t.Helper()
	rec, env := s.do(http.MethodPost, "/auth/login", LoginRequest{Login: login, Password: pw}, nil)
	if rec.Code != http.StatusOK {
		s.t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	decodeData(s.t, env, &resp)
	return resp
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, env envelope, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	if env.Code != code {
		t.Errorf("code = %q, want %q", env.Code, code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != code {
		t.Errorf("X-Error-Code = %q, want %q", got, code)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser("alice@example.com", "correct horse")

	resp := s.login("Alice@Example.com", "correct horse")

	if !strings.HasPrefix(resp.SessionToken, domain.TokenPrefix) {
		t.Errorf("session_token = %q", resp.SessionToken)
	}
	if resp.NeedsMfa {
		t.Error("needs_mfa = true for a user without MFA")
	}
}

func TestLogin_UniformFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser("alice", "correct horse")

	tests := []struct {
		name string
		body LoginRequest
	}{
		{"unknown login", LoginRequest{Login: "mallory", Password: "correct horse"}},
		{"wrong password", LoginRequest{Login: "alice", Password: "battery staple"}},
		{"empty password", LoginRequest{Login: "alice"}},
		{"empty login", LoginRequest{Password: "correct horse"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(http.MethodPost, "/auth/login", tt.body, nil)
			expectError(t, rec, env, http.StatusForbidden, "AM-AUTH-4030")
			if env.Message != "invalid authentication" || env.Details != "" {
				t.Errorf("failure leaks detail: message %q, details %q", env.Message, env.Details)
			}
		})
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := s.do(http.MethodPost, "/auth/login", "{not json", nil)

	expectError(t, rec, env, http.StatusBadRequest, "AM-SYS-4000")
}

func TestMfaFlow(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser("bob", "hunter22")

	rec, env := s.do(http.MethodPost, "/auth/mfa/setup", MfaSetupRequest{User: domain.UserReference{Login: "bob"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("setup: status %d, body %s", rec.Code, rec.Body.String())
	}
	var setup MfaSetupResponse
	decodeData(t, env, &setup)
	if setup.Secret == "" || !strings.HasPrefix(setup.OTPAuthURL, "otpauth://totp/") || len(setup.RecoveryCodes) != domain.DefaultRecoveryCodeCount {
		t.Fatalf("setup response = %+v", setup)
	}

	restricted := s.login("bob", "hunter22")
	if !restricted.NeedsMfa {
		t.Fatal("needs_mfa = false after enrollment")
	}

	// A restricted session is not a login.
	rec, env = s.do(http.MethodPost, "/auth/session/validate", ValidateSessionRequest{SessionToken: restricted.SessionToken}, nil)
	expectError(t, rec, env, http.StatusUnauthorized, "AM-SESS-4010")

	rec, env = s.do(http.MethodPost, "/auth/session/validate", ValidateSessionRequest{SessionToken: restricted.SessionToken, AllowRestricted: true}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate allow_restricted: status %d", rec.Code)
	}
	var v ValidateSessionResponse
	decodeData(t, env, &v)
	if !v.Restricted || v.ExpiresAt == nil {
		t.Errorf("validate = %+v, want restricted with expiry", v)
	}

	rec, env = s.do(http.MethodPost, "/auth/mfa/verify", MfaVerifyRequest{SessionToken: restricted.SessionToken, TotpOrCode: "000000"}, nil)
	if rec.Code == http.StatusOK {
		// One in a million: the wrong code happened to be right.
		t.Skip("000000 was the current code")
	}
	expectError(t, rec, env, http.StatusUnauthorized, "AM-MFA-4011")

	code, err := totp.GenerateCodeCustom(setup.Secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}
	rec, env = s.do(http.MethodPost, "/auth/mfa/verify", MfaVerifyRequest{SessionToken: restricted.SessionToken, TotpOrCode: code}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: status %d, body %s", rec.Code, rec.Body.String())
	}
	var full TokenResponse
	decodeData(t, env, &full)

	rec, _ = s.do(http.MethodPost, "/auth/session/validate", ValidateSessionRequest{SessionToken: full.SessionToken}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("full session validate: status %d", rec.Code)
	}
	rec, env = s.do(http.MethodPost, "/auth/session/validate", ValidateSessionRequest{SessionToken: restricted.SessionToken, AllowRestricted: true}, nil)
	expectError(t, rec, env, http.StatusUnauthorized, "AM-SESS-4010")

	// Recovery code reset and disable need the full session.
	rec, env = s.do(http.MethodPost, "/auth/mfa/reset-recovery", TokenRequest{SessionToken: full.SessionToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset-recovery: status %d", rec.Code)
	}
	var codes RecoveryCodesResponse
	decodeData(t, env, &codes)
	if len(codes.RecoveryCodes) != domain.DefaultRecoveryCodeCount {
		t.Errorf("recovery codes = %d", len(codes.RecoveryCodes))
	}

	rec, _ = s.do(http.MethodPost, "/auth/mfa/disable", TokenRequest{SessionToken: full.SessionToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: status %d", rec.Code)
	}
	if s.login("bob", "hunter22").NeedsMfa {
		t.Error("needs_mfa = true after disable")
	}
}

func TestLogin_LongClientDetails(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser("alice", "correct horse")

	header := http.Header{"User-Agent": {strings.Repeat("Mozilla/5.0 ", 60)}}
	body := LoginRequest{Login: "alice", Password: "correct horse", IPAddress: "fe80::1%" + strings.Repeat("eth", 20)}
	rec, env := s.do(http.MethodPost, "/auth/login", body, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	decodeData(t, env, &resp)

	session, err := s.svc.ValidateSession(context.Background(), &service.ValidateSessionRequest{Token: resp.SessionToken})
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if len(session.UserAgent) != domain.MaxUserAgentLength || len(session.IPAddress) != domain.MaxIPAddressLength {
		t.Errorf("client snapshot lengths = %d/%d, want %d/%d",
			len(session.IPAddress), len(session.UserAgent), domain.MaxIPAddressLength, domain.MaxUserAgentLength)
	}
}

func TestMfaVerify_LockoutRetryAfter(t *testing.T) {
	s := newTestServer(t, nil)
	s.createUser("bob", "hunter22")
	if rec, _ := s.do(http.MethodPost, "/auth/mfa/setup", MfaSetupRequest{User: domain.UserReference{Login: "bob"}}, nil); rec.Code != http.StatusOK {
		t.Fatalf("setup: status %d", rec.Code)
	}
	restricted := s.login("bob", "hunter22")

	verify := MfaVerifyRequest{SessionToken: restricted.SessionToken, TotpOrCode: "not-a-code"}
	for i := 0; i < service.DefaultAttemptPolicy().MaxFailures; i++ {
		rec, env := s.do(http.MethodPost, "/auth/mfa/verify", verify, nil)
		expectError(t, rec, env, http.StatusUnauthorized, "AM-MFA-4011")
		if got := rec.Header().Get("Retry-After"); got != "" {
			t.Errorf("failure %d: Retry-After = %q, want none", i+1, got)
		}
	}

	rec, env := s.do(http.MethodPost, "/auth/mfa/verify", verify, nil)
	expectError(t, rec, env, http.StatusTooManyRequests, domain.ErrMfaLocked.Code)
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "1"},
		{300 * time.Millisecond, "1"},
		{time.Minute, "60"},
		{time.Minute + time.Millisecond, "61"},
		{15 * time.Minute, "900"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.d); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestMfaSetup_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := s.do(http.MethodPost, "/auth/mfa/setup", MfaSetupRequest{}, nil)
	expectError(t, rec, env, http.StatusBadRequest, "AM-ARG-4002")

	rec, env = s.do(http.MethodPost, "/auth/mfa/setup", MfaSetupRequest{User: domain.UserReference{ID: "amus-missing"}}, nil)
	expectError(t, rec, env, http.StatusNotFound, "AM-USER-4040")
}

func TestSessions(t *testing.T) {
	s := newTestServer(t, nil)
	cred := s.createUser("carol", "pa55word")

	first := s.login("carol", "pa55word")
	second := s.login("carol", "pa55word")
	third := s.login("carol", "pa55word")

	rec, env := s.do(http.MethodGet, "/auth/sessions?user_id="+cred.UserID, nil, http.Header{SessionTokenHeader: {second.SessionToken}})
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []SessionResponse
	decodeData(t, env, &list)
	if len(list) != 3 {
		t.Fatalf("list len = %d, want 3", len(list))
	}
	current := 0
	for _, item := range list {
		if item.Current {
			current++
		}
		if item.IPAddress != "203.0.113.9" {
			t.Errorf("ip_address = %q, want the connection address", item.IPAddress)
		}
	}
	if current != 1 {
		t.Errorf("current flagged on %d sessions, want 1", current)
	}

	rec, env = s.do(http.MethodPost, "/auth/session/renew", RenewSessionRequest{SessionToken: first.SessionToken, UserID: cred.UserID}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("renew: status %d, body %s", rec.Code, rec.Body.String())
	}
	var renewed TokenResponse
	decodeData(t, env, &renewed)

	rec, env = s.do(http.MethodPost, "/auth/session/renew", RenewSessionRequest{SessionToken: first.SessionToken, UserID: cred.UserID}, nil)
	expectError(t, rec, env, http.StatusUnauthorized, "AM-SESS-4010")

	rec, env = s.do(http.MethodPost, "/auth/session/invalidate-others", InvalidateOthersRequest{SessionToken: renewed.SessionToken, UserID: cred.UserID}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate-others: status %d", rec.Code)
	}
	var others InvalidateOthersResponse
	decodeData(t, env, &others)
	if others.Invalidated != 2 {
		t.Errorf("invalidated = %d, want 2", others.Invalidated)
	}

	for _, tok := range []string{second.SessionToken, third.SessionToken} {
		rec, env = s.do(http.MethodPost, "/auth/session/validate", ValidateSessionRequest{SessionToken: tok}, nil)
		expectError(t, rec, env, http.StatusUnauthorized, "AM-SESS-4010")
	}

	for i := 0; i < 2; i++ {
		rec, _ = s.do(http.MethodPost, "/auth/logout", TokenRequest{SessionToken: renewed.SessionToken}, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("logout #%d: status %d", i+1, rec.Code)
		}
	}
	rec, _ = s.do(http.MethodPost, "/auth/session/invalidate", TokenRequest{SessionToken: renewed.SessionToken}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("invalidate after logout: status %d", rec.Code)
	}

	_, env = s.do(http.MethodGet, "/auth/sessions?user_id="+cred.UserID, nil, nil)
	decodeData(t, env, &list)
	if len(list) != 4 {
		t.Errorf("list after revocations = %d, want 4 (revoked sessions stay listed)", len(list))
	}
	for _, item := range list {
		if item.RevokedAt == nil {
			t.Errorf("session %s still live", item.SessionID)
		}
	}
}

func TestListSessions_RequiresUserID(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := s.do(http.MethodGet, "/auth/sessions", nil, nil)

	expectError(t, rec, env, http.StatusBadRequest, "AM-ARG-4002")
}

func TestRenew_RestrictedRejected(t *testing.T) {
	s := newTestServer(t, nil)
	cred := s.createUser("dave", "pa55word")
	if _, err := s.svc.MfaSetup(context.Background(), domain.UserReference{ID: cred.UserID}); err != nil {
		t.Fatalf("MfaSetup: %v", err)
	}
	restricted := s.login("dave", "pa55word")

	rec, env := s.do(http.MethodPost, "/auth/session/renew", RenewSessionRequest{SessionToken: restricted.SessionToken, UserID: cred.UserID}, nil)

	expectError(t, rec, env, http.StatusUnauthorized, "AM-SESS-4010")
}

type brokenStore struct{}

func (brokenStore) Update(context.Context, func(service.Tx) error) error {
	return errors.New("disk on fire")
}

func (brokenStore) View(context.Context, func(service.Tx) error) error {
	return errors.New("disk on fire")
}

func TestStorageFailureHidden(t *testing.T) {
	s := newTestServer(t, brokenStore{})

	rec, env := s.do(http.MethodPost, "/auth/session/validate", ValidateSessionRequest{SessionToken: "amtk_x"}, nil)

	expectError(t, rec, env, http.StatusInternalServerError, "AM-SYS-5000")
	if strings.Contains(rec.Body.String(), "disk") {
		t.Errorf("storage cause leaked: %s", rec.Body.String())
	}
	if !strings.Contains(s.logs.String(), "disk on fire") {
		t.Error("storage cause should be logged")
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	rec, _ := s.do(http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
	rec, _ = s.do(http.MethodGet, "/ready", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready: status %d", rec.Code)
	}

	broken := newTestServer(t, brokenStore{})
	rec, env := broken.do(http.MethodGet, "/ready", nil, nil)
	expectError(t, rec, env, http.StatusServiceUnavailable, "AM-SYS-5030")
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"AM-AUTH-4030", http.StatusForbidden},
		{"AM-SESS-4010", http.StatusUnauthorized},
		{"AM-MFA-4011", http.StatusUnauthorized},
		{"AM-USER-4040", http.StatusNotFound},
		{"AM-MFA-4040", http.StatusNotFound},
		{"AM-USER-4090", http.StatusConflict},
		{"AM-MFA-4290", http.StatusTooManyRequests},
		{"AM-SYS-4290", http.StatusTooManyRequests},
		{"AM-ARG-4001", http.StatusBadRequest},
		{"AM-TOKN-4000", http.StatusBadRequest},
		{"AM-SYS-5030", http.StatusServiceUnavailable},
		{"AM-SYS-5001", http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := errorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("errorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
