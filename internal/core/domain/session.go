package domain

import (
	"crypto/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Session constraints.
const (
	MaxUserIDLength    = 128
	MaxIPAddressLength = 45 // IPv6 max length
	MaxUserAgentLength = 512

	// SessionIDPrefix is the prefix for session IDs.
	SessionIDPrefix = "amss-"
)

// Session is one authenticated login of a user. Timestamps are Unix
// milliseconds.
//
// Sessions are never deleted. RevokedAt is set once and is terminal; a
// revoked session stays listed for its owner.
type Session struct {
	ID        string `json:"id"`         // amss-{ulid, lowercase}
	UserID    string `json:"user_id"`
	TokenHash string `json:"token_hash"` // amth_{hex sha256}; the token itself is never stored

	// Client details captured at login and never updated.
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	// Restricted sessions may only complete MFA or log out.
	Restricted bool `json:"restricted"`

	CreatedAt int64 `json:"created_at"`
	ExpiresAt int64 `json:"expires_at"` // 0 never expires
	RevokedAt int64 `json:"revoked_at,omitempty"`
}

// NewSession creates a new Session with a generated ID.
func NewSession(userID string, restricted bool) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:         id,
		UserID:     userID,
		Restricted: restricted,
		CreatedAt:  time.Now().UnixMilli(),
	}, nil
}

// GenerateSessionID generates a new session ID using ULID.
func GenerateSessionID() (string, error) {
	return generateID(SessionIDPrefix)
}

func generateID(prefix string) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != 0 && now.UnixMilli() > s.ExpiresAt
}

func (s *Session) IsRevoked() bool { return s.RevokedAt != 0 }

// IsLive reports whether the session can still authorize anything at now.
func (s *Session) IsLive(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}

// SetClient records the client snapshot. Values longer than the column
// limits are cut at a rune boundary; invalid UTF-8 is replaced first.
func (s *Session) SetClient(ipAddress, userAgent string) {
	s.IPAddress = truncateUTF8(ipAddress, MaxIPAddressLength)
	s.UserAgent = truncateUTF8(userAgent, MaxUserAgentLength)
}

func truncateUTF8(v string, n int) string {
	v = strings.ToValidUTF8(v, "\uFFFD")
	if len(v) <= n {
		return v
	}
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}

// Revoke marks the session revoked at now. The first revocation time wins;
// revoking again returns false and changes nothing.
func (s *Session) Revoke(now time.Time) bool {
	if s.IsRevoked() {
		return false
	}
	s.RevokedAt = now.UnixMilli()
	return true
}

// SetExpiration sets the expiration time from a TTL duration.
// A non-positive ttl clears the expiration.
func (s *Session) SetExpiration(ttl time.Duration) {
	if ttl <= 0 {
		s.ExpiresAt = 0
		return
	}
	s.ExpiresAt = time.UnixMilli(s.CreatedAt).Add(ttl).UnixMilli()
}

// Validate reports every constraint the session breaks in one error.
func (s *Session) Validate() error {
	var bad []string
	check := func(ok bool, msg string) {
		if !ok {
			bad = append(bad, msg)
		}
	}

	check(IsValidSessionID(s.ID), "id is malformed")
	check(s.UserID != "", "user_id is required")
	check(len(s.UserID) <= MaxUserIDLength, "user_id exceeds 128 characters")
	check(ValidateTokenHashFormat(s.TokenHash), "token_hash is malformed")
	check(len(s.IPAddress) <= MaxIPAddressLength, "ip_address exceeds 45 characters")
	check(len(s.UserAgent) <= MaxUserAgentLength, "user_agent exceeds 512 characters")

	if len(bad) > 0 {
		return ErrSessionValidation.WithDetails(strings.Join(bad, "; "))
	}
	return nil
}

func (s *Session) Clone() *Session {
	c := *s
	return &c
}

func (s *Session) CreatedAtTime() time.Time { return time.UnixMilli(s.CreatedAt) }

// ExpiresAtTime returns the zero time for a session without expiry.
func (s *Session) ExpiresAtTime() time.Time { return millisToTime(s.ExpiresAt) }

// RevokedAtTime returns the zero time while the session is live.
func (s *Session) RevokedAtTime() time.Time { return millisToTime(s.RevokedAt) }

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SortSessionsNewestFirst orders sessions by creation time descending,
// breaking ties by ID so the order is stable across backends.
func SortSessionsNewestFirst(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt != sessions[j].CreatedAt {
			return sessions[i].CreatedAt > sessions[j].CreatedAt
		}
		return sessions[i].ID > sessions[j].ID
	})
}

// IsValidSessionID checks if a string is a valid session ID format.
func IsValidSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}
