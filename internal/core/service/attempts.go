package service

import (
	"time"

	"github.com/yndnr/authmesh-go/pkg/cmap"
)

// AttemptPolicy configures MFA failure backoff.
type AttemptPolicy struct {
	// MaxFailures is the number of consecutive failures before lockout begins.
	MaxFailures int
	// BaseLockout is the first lockout; each further failure doubles it.
	BaseLockout time.Duration
	// MaxLockout caps the backoff.
	MaxLockout time.Duration
	// Expiry forgets a user's failures this long after the last one.
	Expiry time.Duration
}

// DefaultAttemptPolicy returns 5 free failures, then 1m doubling to 15m.
func DefaultAttemptPolicy() AttemptPolicy {
	return AttemptPolicy{
		MaxFailures: 5,
		BaseLockout: time.Minute,
		MaxLockout:  15 * time.Minute,
		Expiry:      time.Hour,
	}
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// AttemptLimiter tracks consecutive MFA failures per user.
//
// State is process-local and lives outside storage transactions.
type AttemptLimiter struct {
	policy  AttemptPolicy
	records *cmap.Map[string, attemptRecord]
	now     func() time.Time
}

// NewAttemptLimiter creates an AttemptLimiter. Zero fields in policy take
// their DefaultAttemptPolicy values.
func NewAttemptLimiter(policy AttemptPolicy) *AttemptLimiter {
	def := DefaultAttemptPolicy()
	if policy.MaxFailures <= 0 {
		policy.MaxFailures = def.MaxFailures
	}
	if policy.BaseLockout <= 0 {
		policy.BaseLockout = def.BaseLockout
	}
	if policy.MaxLockout < policy.BaseLockout {
		policy.MaxLockout = max(def.MaxLockout, policy.BaseLockout)
	}
	if policy.Expiry <= 0 {
		policy.Expiry = def.Expiry
	}
	return &AttemptLimiter{
		policy:  policy,
		records: cmap.New[string, attemptRecord](),
		now:     time.Now,
	}
}

// Check reports whether userID is locked out and for how long.
func (l *AttemptLimiter) Check(userID string) (blocked bool, retryAfter time.Duration) {
	rec, ok := l.records.Get(userID)
	if !ok {
		return false, 0
	}
	now := l.now()
	if now.Sub(rec.lastFailure) > l.policy.Expiry {
		l.records.Delete(userID)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailure counts a failure and extends the lockout once MaxFailures
// is reached.
func (l *AttemptLimiter) RecordFailure(userID string) {
	now := l.now()
	l.records.Update(userID, func(rec attemptRecord, exists bool) attemptRecord {
		if exists && now.Sub(rec.lastFailure) > l.policy.Expiry {
			rec = attemptRecord{}
		}
		rec.failures++
		rec.lastFailure = now

		if rec.failures >= l.policy.MaxFailures {
			lockout := l.policy.BaseLockout
			for i := l.policy.MaxFailures; i < rec.failures; i++ {
				lockout *= 2
				if lockout >= l.policy.MaxLockout {
					lockout = l.policy.MaxLockout
					break
				}
			}
			rec.lockedUntil = now.Add(lockout)
		}
		return rec
	})
}

// RecordSuccess clears the user's failures.
func (l *AttemptLimiter) RecordSuccess(userID string) {
	l.records.Delete(userID)
}

// Sweep drops records idle longer than the expiry and returns how many.
func (l *AttemptLimiter) Sweep() int {
	now := l.now()
	idle := func(rec attemptRecord) bool { return now.Sub(rec.lastFailure) > l.policy.Expiry }

	var stale []string
	l.records.Range(func(userID string, rec attemptRecord) bool {
		if idle(rec) {
			stale = append(stale, userID)
		}
		return true
	})

	removed := 0
	for _, userID := range stale {
		if l.records.DeleteIf(userID, idle) {
			removed++
		}
	}
	return removed
}

// Tracked returns the number of users with recorded failures.
func (l *AttemptLimiter) Tracked() int {
	return l.records.Count()
}
