package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

const namespace = "authmesh"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Auth metrics
	LoginsTotal     *prometheus.CounterVec
	MfaVerifyTotal  *prometheus.CounterVec
	SessionsRevoked prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

// NewRegistry creates a registry with the application metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		MfaVerifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mfa_verifications_total",
			Help:      "Second-factor verifications by outcome",
		}, []string{"outcome"}),
		SessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions revoked by renewal or invalidate-others",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.LoginsTotal,
		r.MfaVerifyTotal,
		r.SessionsRevoked,
		r.RequestsTotal,
		r.RequestDuration,
		r.RateLimited,
	)
	return r
}

// Handler returns the /metrics handler for r.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registerer exposes the underlying registry for other components
// (storage engines register their own gauges).
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

func outcome(kind domain.ErrorKind) string {
	if kind == domain.KindNone {
		return "success"
	}
	return string(kind)
}

// RecordLogin implements service.Recorder.
func (r *Registry) RecordLogin(kind domain.ErrorKind) {
	r.LoginsTotal.WithLabelValues(outcome(kind)).Inc()
}

// RecordMfaVerify implements service.Recorder.
func (r *Registry) RecordMfaVerify(kind domain.ErrorKind) {
	r.MfaVerifyTotal.WithLabelValues(outcome(kind)).Inc()
}

// RecordSessionsRevoked implements service.Recorder.
func (r *Registry) RecordSessionsRevoked(n int) {
	if n > 0 {
		r.SessionsRevoked.Add(float64(n))
	}
}

// ObserveRequest records one finished HTTP request.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	r.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncRateLimited counts one rate-limited request.
func (r *Registry) IncRateLimited() {
	r.RateLimited.Inc()
}
