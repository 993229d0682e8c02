package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/authmesh-go/pkg/cmap"
)

// DefaultBypassHeader is the header that carries the rate-limit bypass secret.
const DefaultBypassHeader = "X-Exempt-RateLimit"

// visitorIdleTTL is how long an IP bucket survives without requests.
const visitorIdleTTL = 10 * time.Minute

// RateLimitConfig configures the per-IP limiter. It is passed by value;
// live changes go through IPRateLimiter.SetConfig.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate and burst per client IP.
	// Zero or less disables limiting.
	RequestsPerMinute int

	// BypassHeader names the header compared against BypassSecret.
	BypassHeader string

	// BypassSecret exempts requests that present it. Empty disables the bypass.
	BypassSecret string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	cfg      atomic.Pointer[RateLimitConfig]
	visitors *cmap.Map[string, *visitor]
	now      func() time.Time
}

// NewIPRateLimiter creates a limiter with cfg.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	l := &IPRateLimiter{
		visitors: cmap.New[string, *visitor](),
		now:      time.Now,
	}
	l.store(cfg)
	return l
}

func (l *IPRateLimiter) store(cfg RateLimitConfig) {
	if cfg.BypassHeader == "" {
		cfg.BypassHeader = DefaultBypassHeader
	}
	l.cfg.Store(&cfg)
}

// Config returns the active configuration.
func (l *IPRateLimiter) Config() RateLimitConfig {
	return *l.cfg.Load()
}

// SetConfig swaps the configuration and retunes existing buckets.
func (l *IPRateLimiter) SetConfig(cfg RateLimitConfig) {
	l.store(cfg)
	limit, burst := bucketShape(cfg.RequestsPerMinute)
	now := l.now()
	l.visitors.Range(func(_ string, v *visitor) bool {
		v.limiter.SetLimitAt(now, limit)
		v.limiter.SetBurstAt(now, burst)
		return true
	})
}

func bucketShape(perMinute int) (rate.Limit, int) {
	if perMinute <= 0 {
		return rate.Inf, 0
	}
	return rate.Limit(float64(perMinute) / 60), perMinute
}

// Allow consumes one token for ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	cfg := l.cfg.Load()
	if cfg.RequestsPerMinute <= 0 {
		return true
	}

	now := l.now()
	v, ok := l.visitors.Get(ip)
	if !ok {
		limit, burst := bucketShape(cfg.RequestsPerMinute)
		v, _ = l.visitors.GetOrSet(ip, &visitor{limiter: rate.NewLimiter(limit, burst)})
	}
	v.lastSeen.Store(now.UnixNano())
	return v.limiter.AllowN(now, 1)
}

// Bypassed reports whether r carries the configured bypass secret.
func (l *IPRateLimiter) Bypassed(r *http.Request) bool {
	cfg := l.cfg.Load()
	if cfg.BypassSecret == "" {
		return false
	}
	presented := r.Header.Get(cfg.BypassHeader)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.BypassSecret)) == 1
}

// Sweep drops buckets idle for longer than the idle TTL and returns how
// many were removed.
func (l *IPRateLimiter) Sweep() int {
	cutoff := l.now().Add(-visitorIdleTTL).UnixNano()
	idle := func(v *visitor) bool { return v.lastSeen.Load() < cutoff }

	var stale []string
	l.visitors.Range(func(ip string, v *visitor) bool {
		if idle(v) {
			stale = append(stale, ip)
		}
		return true
	})

	removed := 0
	for _, ip := range stale {
		if l.visitors.DeleteIf(ip, idle) {
			removed++
		}
	}
	return removed
}

// Tracked returns the number of IPs with a live bucket.
func (l *IPRateLimiter) Tracked() int {
	return l.visitors.Count()
}

// Run sweeps idle buckets every interval until ctx is done.
func (l *IPRateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
