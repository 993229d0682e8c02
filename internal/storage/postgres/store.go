// Package postgres implements the AuthMesh store on PostgreSQL via pgx.
//
// Session reads inside Update take row locks (SELECT ... FOR UPDATE), so
// two transactions revoking or renewing the same session serialise on it.
// A transaction picked as a deadlock victim is re-run.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
)

const (
	uniqueViolation  = "23505"
	deadlockDetected = "40P01"

	// maxDeadlockRetries bounds re-runs of a transaction Postgres aborted
	// to break a lock cycle.
	maxDeadlockRetries = 3
)

// Store implements service.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := NewStore(pool, logger)
	s.logger.Info("postgres store opened")
	return s, nil
}

// NewStore wraps an existing pool. Close closes the pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger.With("component", "postgres")}
}

// Update runs fn in a read-write transaction. fn must not keep state
// between attempts.
func (s *Store) Update(ctx context.Context, fn func(tx service.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxDeadlockRetries; attempt++ {
		err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			return fn(&pgTx{tx: tx, writable: true})
		})
		if !hasCode(err, deadlockDetected) {
			return err
		}
		s.logger.Debug("deadlock detected, retrying", "attempt", attempt)
	}
	return err
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx service.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	s.logger.Info("postgres store closed")
	return nil
}

type pgTx struct {
	tx       pgx.Tx
	writable bool
}

func (t *pgTx) Sessions() service.SessionRepository       { return sessions{t} }
func (t *pgTx) Credentials() service.CredentialRepository { return credentials{t} }
func (t *pgTx) Mfa() service.MfaRepository                { return mfa{t} }

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func isUniqueViolation(err error) bool { return hasCode(err, uniqueViolation) }

// ============================================================================
// Sessions
// ============================================================================

const sessionColumns = `id, user_id, token_hash, ip_address, user_agent,
	restricted, created_at, expires_at, revoked_at`

type sessions struct{ t *pgTx }

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.IPAddress, &s.UserAgent,
		&s.Restricted, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create uses ON CONFLICT DO NOTHING so a hash collision leaves the
// transaction usable for a retry with a fresh token.
func (r sessions) Create(ctx context.Context, s *domain.Session) error {
	tag, err := r.t.tx.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_hash) DO NOTHING
	`, s.ID, s.UserID, s.TokenHash, s.IPAddress, s.UserAgent,
		s.Restricted, s.CreatedAt, s.ExpiresAt, s.RevokedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenHashConflict
	}
	return nil
}

func (r sessions) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	if r.t.writable {
		query += ` FOR UPDATE`
	}
	return scanSession(r.t.tx.QueryRow(ctx, query, tokenHash))
}

// Update writes the mutable columns. Identity, owner and token hash are
// fixed at creation, and a revocation time once written is kept.
func (r sessions) Update(ctx context.Context, s *domain.Session) error {
	tag, err := r.t.tx.Exec(ctx, `
		UPDATE sessions
		SET expires_at = $2,
		    revoked_at = CASE WHEN revoked_at = 0 THEN $3 ELSE revoked_at END
		WHERE id = $1 AND token_hash = $4
	`, s.ID, s.ExpiresAt, s.RevokedAt, s.TokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ListByUserID locks the rows inside Update, so a session listed as live
// cannot be revoked by another transaction before this one commits.
func (r sessions) ListByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	if r.t.writable {
		query += ` FOR UPDATE`
	}
	rows, err := r.t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// ============================================================================
// Credentials
// ============================================================================

type credentials struct{ t *pgTx }

func scanCredential(row pgx.Row) (*domain.Credential, error) {
	var c domain.Credential
	err := row.Scan(&c.UserID, &c.Login, &c.PasswordHash, &c.MfaEnabled, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r credentials) GetByLogin(ctx context.Context, login string) (*domain.Credential, error) {
	return scanCredential(r.t.tx.QueryRow(ctx, `
		SELECT user_id, login, password_hash, mfa_enabled, created_at, updated_at
		FROM credentials WHERE login = $1
	`, login))
}

func (r credentials) GetByID(ctx context.Context, userID string) (*domain.Credential, error) {
	return scanCredential(r.t.tx.QueryRow(ctx, `
		SELECT user_id, login, password_hash, mfa_enabled, created_at, updated_at
		FROM credentials WHERE user_id = $1
	`, userID))
}

func (r credentials) Create(ctx context.Context, c *domain.Credential) error {
	tag, err := r.t.tx.Exec(ctx, `
		INSERT INTO credentials (user_id, login, password_hash, mfa_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`, c.UserID, c.Login, c.PasswordHash, c.MfaEnabled, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserConflict
	}
	return nil
}

func (r credentials) Update(ctx context.Context, c *domain.Credential) error {
	tag, err := r.t.tx.Exec(ctx, `
		UPDATE credentials
		SET password_hash = $2, mfa_enabled = $3, updated_at = $4
		WHERE user_id = $1
	`, c.UserID, c.PasswordHash, c.MfaEnabled, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ============================================================================
// MFA
// ============================================================================

type mfa struct{ t *pgTx }

func (r mfa) Get(ctx context.Context, userID string) (*domain.MfaEnrollment, error) {
	query := `
		SELECT user_id, secret, recovery_code_hashes, created_at, updated_at
		FROM mfa_enrollments WHERE user_id = $1`
	if r.t.writable {
		query += ` FOR UPDATE`
	}

	var e domain.MfaEnrollment
	err := r.t.tx.QueryRow(ctx, query, userID).
		Scan(&e.UserID, &e.Secret, &e.RecoveryCodeHashes, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMfaNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r mfa) Put(ctx context.Context, e *domain.MfaEnrollment) error {
	hashes := e.RecoveryCodeHashes
	if hashes == nil {
		hashes = []string{}
	}
	_, err := r.t.tx.Exec(ctx, `
		INSERT INTO mfa_enrollments (user_id, secret, recovery_code_hashes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret,
		    recovery_code_hashes = EXCLUDED.recovery_code_hashes,
		    updated_at = EXCLUDED.updated_at
	`, e.UserID, e.Secret, hashes, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r mfa) Delete(ctx context.Context, userID string) error {
	_, err := r.t.tx.Exec(ctx, `DELETE FROM mfa_enrollments WHERE user_id = $1`, userID)
	return err
}
