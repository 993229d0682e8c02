package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// Recorder receives operation outcomes for metrics. An empty kind means
// success.
type Recorder interface {
	RecordLogin(kind domain.ErrorKind)
	RecordMfaVerify(kind domain.ErrorKind)
	RecordSessionsRevoked(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(domain.ErrorKind)     {}
func (nopRecorder) RecordMfaVerify(domain.ErrorKind) {}
func (nopRecorder) RecordSessionsRevoked(int)        {}

// AuthService is the boundary facade. Every method runs in exactly one
// storage transaction.
type AuthService struct {
	store       Store
	credentials *CredentialVerifier
	sessions    *SessionManager
	mfa         *MfaManager
	recorder    Recorder
	logger      *slog.Logger
}

// AuthServiceOption configures an AuthService.
type AuthServiceOption func(*AuthService)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) AuthServiceOption {
	return func(s *AuthService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AuthServiceOption {
	return func(s *AuthService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewAuthService creates an AuthService.
func NewAuthService(store Store, credentials *CredentialVerifier, sessions *SessionManager, mfa *MfaManager, opts ...AuthServiceOption) *AuthService {
	s := &AuthService{
		store:       store,
		credentials: credentials,
		sessions:    sessions,
		mfa:         mfa,
		recorder:    nopRecorder{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth_service")
	return s
}

// ============================================================================
// Login
// ============================================================================

// LoginRequest contains login parameters.
type LoginRequest struct {
	Login     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResponse contains the login result.
type LoginResponse struct {
	Token    string
	NeedsMfa bool
	Session  *domain.Session
}

// Login checks the password and creates a session, restricted when the
// user has MFA enabled.
//
// The only errors returned are domain.ErrInvalidAuthentication and
// domain.ErrInternalServer, without details.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	resp, err := s.login(ctx, req)
	err = s.collapseLoginError(ctx, req, err)
	s.recorder.RecordLogin(domain.KindOf(err))
	return resp, err
}

func (s *AuthService) login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req.Password == "" {
		// Still goes through the verifier so timing matches a wrong password.
		s.logger.WarnContext(ctx, "login with empty password, client probably sent the wrong field",
			"login", req.Login, "ip_address", req.IPAddress)
	}

	var resp *LoginResponse
	err := s.store.Update(ctx, func(tx Tx) error {
		auth, err := s.credentials.AuthenticatePassword(ctx, tx, &AuthenticatePasswordRequest{
			Login:    req.Login,
			Password: req.Password,
		})
		if err != nil {
			return err
		}

		created, err := s.sessions.Create(ctx, tx, &CreateSessionRequest{
			UserID:     auth.UserID,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			Restricted: auth.NeedsMfa,
		})
		if err != nil {
			return err
		}

		resp = &LoginResponse{
			Token:    created.Token,
			NeedsMfa: auth.NeedsMfa,
			Session:  created.Session,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// collapseLoginError maps every login failure onto the three client-visible
// outcomes. Detail stays in the server log.
func (s *AuthService) collapseLoginError(ctx context.Context, req *LoginRequest, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidAuthentication):
		s.logger.InfoContext(ctx, "login rejected", "login", req.Login, "ip_address", req.IPAddress)
		return domain.ErrInvalidAuthentication
	default:
		s.logger.ErrorContext(ctx, "login failed", "login", req.Login, "error", err)
		return domain.ErrInternalServer
	}
}

// ============================================================================
// MFA
// ============================================================================

// MfaVerifyRequest contains second-factor parameters.
type MfaVerifyRequest struct {
	Token     string // Restricted session token
	Code      string // TOTP or recovery code
	IPAddress string
	UserAgent string
}

// MfaVerify checks the second factor and rotates the restricted session
// into a full one. Both steps commit together or not at all.
func (s *AuthService) MfaVerify(ctx context.Context, req *MfaVerifyRequest) (*CreateSessionResponse, error) {
	var resp *CreateSessionResponse
	var userID string
	err := s.store.Update(ctx, func(tx Tx) error {
		session, err := s.mfa.Verify(ctx, tx, &VerifyMfaRequest{Token: req.Token, Code: req.Code})
		if err != nil {
			return err
		}
		userID = session.UserID

		resp, err = s.sessions.Renew(ctx, tx, &RenewSessionRequest{
			Token:           req.Token,
			UserID:          session.UserID,
			IPAddress:       req.IPAddress,
			UserAgent:       req.UserAgent,
			AllowRestricted: true,
		})
		return err
	})
	s.recorder.RecordMfaVerify(domain.KindOf(err))
	if err != nil {
		return nil, err
	}
	s.mfa.ResetFailures(userID)
	return resp, nil
}

// MfaSetup enrolls the referenced user.
func (s *AuthService) MfaSetup(ctx context.Context, ref domain.UserReference) (*SetupMfaResponse, error) {
	var resp *SetupMfaResponse
	err := s.store.Update(ctx, func(tx Tx) error {
		cred, err := s.credentials.ResolveUser(ctx, tx, ref)
		if err != nil {
			return err
		}
		resp, err = s.mfa.Setup(ctx, tx, cred)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "mfa enrolled", "user_id", ref.ID, "login", ref.Login)
	return resp, nil
}

// MfaDisable removes the enrollment of the token's user. The token must
// belong to an unrestricted session.
func (s *AuthService) MfaDisable(ctx context.Context, token string) error {
	return s.store.Update(ctx, func(tx Tx) error {
		session, err := s.sessions.ResolveUser(ctx, tx, token, false)
		if err != nil {
			return err
		}
		return s.mfa.Disable(ctx, tx, session.UserID)
	})
}

// MfaResetRecovery replaces the recovery codes of the token's user. The
// token must belong to an unrestricted session.
func (s *AuthService) MfaResetRecovery(ctx context.Context, token string) ([]string, error) {
	var codes []string
	err := s.store.Update(ctx, func(tx Tx) error {
		session, err := s.sessions.ResolveUser(ctx, tx, token, false)
		if err != nil {
			return err
		}
		codes, err = s.mfa.ResetRecoveryCodes(ctx, tx, session.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// ============================================================================
// Sessions
// ============================================================================

// ListSessions returns every session of userID, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		sessions, err = s.sessions.List(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// RenewSession rotates an unrestricted session.
func (s *AuthService) RenewSession(ctx context.Context, req *RenewSessionRequest) (*CreateSessionResponse, error) {
	public := *req
	public.AllowRestricted = false

	var resp *CreateSessionResponse
	err := s.store.Update(ctx, func(tx Tx) error {
		var err error
		resp, err = s.sessions.Renew(ctx, tx, &public)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recorder.RecordSessionsRevoked(1)
	return resp, nil
}

// ValidateSessionRequest contains validation parameters.
type ValidateSessionRequest struct {
	Token           string
	UserID          string // Optional owner check
	AllowRestricted bool
}

// ValidateSession resolves a live session. Restricted sessions fail unless
// AllowRestricted is set.
func (s *AuthService) ValidateSession(ctx context.Context, req *ValidateSessionRequest) (*domain.Session, error) {
	var session *domain.Session
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		session, err = s.sessions.Verify(ctx, tx, &VerifySessionRequest{Token: req.Token, UserID: req.UserID})
		if err != nil {
			return err
		}
		if session.Restricted && !req.AllowRestricted {
			return domain.ErrSessionInvalid
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// InvalidateSession revokes one session. It is safe to retry.
func (s *AuthService) InvalidateSession(ctx context.Context, token string) error {
	return s.store.Update(ctx, func(tx Tx) error {
		return s.sessions.Invalidate(ctx, tx, token)
	})
}

// Logout is InvalidateSession.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.InvalidateSession(ctx, token)
}

// InvalidateOtherSessions revokes every other live session of userID. The
// token must belong to an unrestricted session of that user.
func (s *AuthService) InvalidateOtherSessions(ctx context.Context, token, userID string) (int, error) {
	var count int
	err := s.store.Update(ctx, func(tx Tx) error {
		if _, err := s.sessions.ResolveUser(ctx, tx, token, false); err != nil {
			return err
		}
		var err error
		count, err = s.sessions.InvalidateOthers(ctx, tx, token, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recorder.RecordSessionsRevoked(count)
	return count, nil
}

// ============================================================================
// Provisioning and health
// ============================================================================

// CreateUser provisions a credential.
func (s *AuthService) CreateUser(ctx context.Context, req *CreateUserRequest) (*domain.Credential, error) {
	var cred *domain.Credential
	err := s.store.Update(ctx, func(tx Tx) error {
		var err error
		cred, err = s.credentials.CreateUser(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Ready opens and closes a read transaction.
func (s *AuthService) Ready(ctx context.Context) error {
	return s.store.View(ctx, func(Tx) error { return nil })
}
