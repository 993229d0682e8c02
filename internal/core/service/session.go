package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// maxTokenAttempts bounds regeneration after a token hash conflict.
const maxTokenAttempts = 3

// SessionConfig holds session lifetimes.
type SessionConfig struct {
	// NormalTTL applies to unrestricted sessions. Zero means no expiry.
	NormalTTL time.Duration
	// RestrictedTTL applies to sessions waiting for a second factor.
	RestrictedTTL time.Duration
}

// DefaultSessionConfig returns 30 days for full sessions and 10 minutes
// for restricted ones.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		NormalTTL:     30 * 24 * time.Hour,
		RestrictedTTL: 10 * time.Minute,
	}
}

// SessionManager owns the session lifecycle.
type SessionManager struct {
	cfg    SessionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(cfg SessionConfig, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		cfg:    cfg,
		logger: logger.With("component", "session_manager"),
		now:    time.Now,
	}
}

// ============================================================================
// Create
// ============================================================================

// CreateSessionRequest contains parameters for session creation.
type CreateSessionRequest struct {
	UserID     string // Required
	IPAddress  string
	UserAgent  string
	Restricted bool
}

// CreateSessionResponse contains the result of session creation.
type CreateSessionResponse struct {
	Token   string          // The plaintext token (only returned once)
	Session *domain.Session // The stored session
}

// Create mints a token and inserts a session for it.
func (m *SessionManager) Create(ctx context.Context, tx Tx, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	// 1. Validate input
	if req.UserID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("user_id is required")
	}

	for attempt := 1; ; attempt++ {
		// 2. Generate token and session
		plaintext, hash, err := domain.GenerateToken()
		if err != nil {
			return nil, err
		}
		session, err := domain.NewSession(req.UserID, req.Restricted)
		if err != nil {
			return nil, err
		}
		session.CreatedAt = m.now().UnixMilli()
		session.TokenHash = hash
		session.SetClient(req.IPAddress, req.UserAgent)
		if req.Restricted {
			session.SetExpiration(m.cfg.RestrictedTTL)
		} else {
			session.SetExpiration(m.cfg.NormalTTL)
		}

		// 3. Validate session
		if err := session.Validate(); err != nil {
			return nil, err
		}

		// 4. Persist; a hash conflict means regenerate
		err = tx.Sessions().Create(ctx, session)
		if err == nil {
			return &CreateSessionResponse{Token: plaintext, Session: session}, nil
		}
		if !errors.Is(err, domain.ErrTokenHashConflict) || attempt >= maxTokenAttempts {
			return nil, storageError(err)
		}
		m.logger.WarnContext(ctx, "token hash conflict, regenerating", "attempt", attempt)
	}
}

// ============================================================================
// Verify
// ============================================================================

// VerifySessionRequest contains parameters for session verification.
type VerifySessionRequest struct {
	Token  string
	UserID string // Optional; when set the session must belong to this user
}

// Verify resolves a live session for the token.
//
// It fails with domain.ErrSessionInvalid when the token is unknown,
// revoked, expired, or owned by another user. The restricted flag is
// returned on the session and is not checked here.
func (m *SessionManager) Verify(ctx context.Context, tx Tx, req *VerifySessionRequest) (*domain.Session, error) {
	if !domain.ValidateTokenFormat(req.Token) {
		return nil, domain.ErrSessionInvalid
	}

	session, err := tx.Sessions().GetByTokenHash(ctx, domain.HashToken(req.Token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionInvalid
		}
		return nil, storageError(err)
	}

	if !session.IsLive(m.now()) || (req.UserID != "" && session.UserID != req.UserID) {
		return nil, domain.ErrSessionInvalid
	}
	return session, nil
}

// ResolveUser verifies the token and enforces the restricted-session
// policy. A restricted session fails unless allowRestricted is set.
func (m *SessionManager) ResolveUser(ctx context.Context, tx Tx, token string, allowRestricted bool) (*domain.Session, error) {
	session, err := m.Verify(ctx, tx, &VerifySessionRequest{Token: token})
	if err != nil {
		return nil, err
	}
	if session.Restricted && !allowRestricted {
		return nil, domain.ErrSessionInvalid
	}
	return session, nil
}

// ============================================================================
// Renew
// ============================================================================

// RenewSessionRequest contains parameters for token rotation.
type RenewSessionRequest struct {
	Token     string // Required, the token being replaced
	UserID    string // Required, must own Token
	IPAddress string
	UserAgent string

	// AllowRestricted lets a restricted session be renewed. Only the MFA
	// verification path sets it.
	AllowRestricted bool
}

// Renew revokes the old session and creates an unrestricted replacement
// with a fresh token and the new client snapshot.
func (m *SessionManager) Renew(ctx context.Context, tx Tx, req *RenewSessionRequest) (*CreateSessionResponse, error) {
	// 1. Validate input
	if req.UserID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("user_id is required")
	}

	// 2. Resolve the old session
	old, err := m.Verify(ctx, tx, &VerifySessionRequest{Token: req.Token, UserID: req.UserID})
	if err != nil {
		return nil, err
	}
	if old.Restricted && !req.AllowRestricted {
		return nil, domain.ErrSessionInvalid
	}

	// 3. Revoke it
	old.Revoke(m.now())
	if err := tx.Sessions().Update(ctx, old); err != nil {
		return nil, storageError(err)
	}

	// 4. Create the replacement
	return m.Create(ctx, tx, &CreateSessionRequest{
		UserID:     old.UserID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		Restricted: false,
	})
}

// ============================================================================
// Enumerate
// ============================================================================

// List returns every session of the user, revoked included, newest first.
func (m *SessionManager) List(ctx context.Context, tx Tx, userID string) ([]*domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("user_id is required")
	}

	sessions, err := tx.Sessions().ListByUserID(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}
	domain.SortSessionsNewestFirst(sessions)
	return sessions, nil
}

// ============================================================================
// Invalidate
// ============================================================================

// Invalidate revokes the session for token. Unknown, malformed and already
// revoked tokens are not an error.
func (m *SessionManager) Invalidate(ctx context.Context, tx Tx, token string) error {
	if !domain.ValidateTokenFormat(token) {
		return nil
	}

	session, err := tx.Sessions().GetByTokenHash(ctx, domain.HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			m.logger.DebugContext(ctx, "invalidate for unknown token", "token", domain.MaskToken(token))
			return nil
		}
		return storageError(err)
	}

	if !session.Revoke(m.now()) {
		return nil
	}
	return storageError(tx.Sessions().Update(ctx, session))
}

// InvalidateOthers revokes every live session of userID except the one for
// token and returns how many were revoked. The token must resolve to a
// live session of userID.
func (m *SessionManager) InvalidateOthers(ctx context.Context, tx Tx, token, userID string) (int, error) {
	if userID == "" {
		return 0, domain.ErrMissingArgument.WithDetails("user_id is required")
	}

	// 1. The caller's own session must be valid and owned by userID
	current, err := m.Verify(ctx, tx, &VerifySessionRequest{Token: token, UserID: userID})
	if err != nil {
		return 0, err
	}

	// 2. Revoke the rest
	sessions, err := tx.Sessions().ListByUserID(ctx, userID)
	if err != nil {
		return 0, storageError(err)
	}

	now := m.now()
	revoked := 0
	for _, s := range sessions {
		if s.ID == current.ID || !s.IsLive(now) {
			continue
		}
		s.Revoke(now)
		if err := tx.Sessions().Update(ctx, s); err != nil {
			return 0, storageError(err)
		}
		revoked++
	}
	return revoked, nil
}
