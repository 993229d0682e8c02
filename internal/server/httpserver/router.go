package httpserver

import (
	"net/http"

	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Auth *service.AuthService

	// Logger is the base request logger. Nil uses logger.Default().
	Logger logger.Logger

	// Observer receives per-route measurements. Nil disables them.
	Observer Observer

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	RateLimit RateLimitConfig

	TrustProxyHeaders bool
}

// Router dispatches the API and probe routes.
type Router struct {
	mux     *http.ServeMux
	limiter *IPRateLimiter
}

// NewRouter creates and configures the HTTP router with all routes and
// middleware.
//
// The /auth routes get RequestID, Recover, Audit, Metrics and the per-IP
// rate limiter. Health probes get only RequestID and Recover, and /metrics
// only Recover.
func NewRouter(cfg RouterConfig) *Router {
	l := cfg.Logger
	if l == nil {
		l = logger.Default()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	sl := l.Slog()

	h := handler.New(cfg.Auth, sl)
	rt := &Router{
		mux:     http.NewServeMux(),
		limiter: NewIPRateLimiter(cfg.RateLimit),
	}

	base := func(pattern string) []Middleware {
		return []Middleware{
			RequestID(l, cfg.TrustProxyHeaders),
			Recover(sl),
			Audit(),
			Metrics(obs, pattern),
		}
	}

	for pattern, fn := range h.Routes() {
		mw := append(base(pattern), RateLimit(rt.limiter, obs))
		rt.mux.Handle(pattern, Chain(fn, mw...))
	}
	for pattern, fn := range h.HealthRoutes() {
		rt.mux.Handle(pattern, Chain(fn, RequestID(l, cfg.TrustProxyHeaders), Recover(sl)))
	}
	if cfg.MetricsHandler != nil {
		rt.mux.Handle("GET /metrics", Chain(cfg.MetricsHandler, Recover(sl)))
	}

	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Limiter returns the router's per-IP limiter.
func (rt *Router) Limiter() *IPRateLimiter {
	return rt.limiter
}

// UpdateRateLimit applies a new limiter configuration to live traffic.
func (rt *Router) UpdateRateLimit(cfg RateLimitConfig) {
	rt.limiter.SetConfig(cfg)
}

