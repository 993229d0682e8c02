package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/core/service"
)

var _ service.Recorder = (*Registry)(nil)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.registry == nil {
		t.Fatal("registry field is nil")
	}
	if r.LoginsTotal == nil || r.MfaVerifyTotal == nil || r.SessionsRevoked == nil {
		t.Error("auth metrics are nil")
	}
	if r.RequestsTotal == nil || r.RequestDuration == nil || r.RateLimited == nil {
		t.Error("request metrics are nil")
	}
}

func TestHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	NewRegistry().Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(string(body), "process_") {
		t.Error("expected process metrics")
	}
}

func TestRecordLogin(t *testing.T) {
	r := NewRegistry()
	r.RecordLogin(domain.KindNone)
	r.RecordLogin(domain.KindNone)
	r.RecordLogin(domain.KindInvalidAuthentication)

	if got := testutil.ToFloat64(r.LoginsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.LoginsTotal.WithLabelValues("invalid_authentication")); got != 1 {
		t.Errorf("invalid_authentication = %v, want 1", got)
	}
}

func TestRecordMfaVerify(t *testing.T) {
	r := NewRegistry()
	r.RecordMfaVerify(domain.KindMfaInvalid)
	r.RecordMfaVerify(domain.KindRateLimited)

	if got := testutil.ToFloat64(r.MfaVerifyTotal.WithLabelValues("mfa_invalid")); got != 1 {
		t.Errorf("mfa_invalid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.MfaVerifyTotal.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("rate_limited = %v, want 1", got)
	}
}

func TestRecordSessionsRevoked(t *testing.T) {
	r := NewRegistry()
	r.RecordSessionsRevoked(3)
	r.RecordSessionsRevoked(0)
	r.RecordSessionsRevoked(-1)

	if got := testutil.ToFloat64(r.SessionsRevoked); got != 3 {
		t.Errorf("sessions_revoked_total = %v, want 3", got)
	}
}

func TestObserveRequest(t *testing.T) {
	r := NewRegistry()
	r.ObserveRequest(http.MethodPost, "/auth/login", 200, 15*time.Millisecond)
	r.ObserveRequest(http.MethodPost, "/auth/login", 403, time.Millisecond)
	r.IncRateLimited()

	if got := testutil.ToFloat64(r.RequestsTotal.WithLabelValues("POST", "/auth/login", "403")); got != 1 {
		t.Errorf("requests_total{403} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.RequestDuration); got != 1 {
		t.Errorf("request_duration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(r.RateLimited); got != 1 {
		t.Errorf("rate_limited_total = %v, want 1", got)
	}
}

func TestCollector(t *testing.T) {
	n := 4
	c := NewCollector(func() int { return n })

	if got := testutil.ToFloat64(c); got != 4 {
		t.Errorf("failure_records = %v, want 4", got)
	}
	n = 7
	if got := testutil.ToFloat64(c); got != 7 {
		t.Errorf("failure_records = %v, want 7", got)
	}

	r := NewRegistry()
	r.Registerer().MustRegister(c)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "authmesh_mfa_failure_records 7") {
		t.Error("collector output missing from /metrics")
	}
}
