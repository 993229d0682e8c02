package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
)

type fakeObserver struct {
	mu          sync.Mutex
	routes      []string
	statuses    []int
	rateLimited int
}

func (o *fakeObserver) ObserveRequest(_, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, route)
	o.statuses = append(o.statuses, status)
}

func (o *fakeObserver) IncRateLimited() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rateLimited++
}

func newBufferLogger(t *testing.T) (logger.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l, err := logger.New(logger.Config{Enabled: true, Level: "debug", Format: "json", Output: buf})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return l, buf
}

func discardSlog() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("a"), mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := strings.Join(order, ","); got != "a,b,handler" {
		t.Errorf("order = %s, want a,b,handler", got)
	}
}

func TestRequestID(t *testing.T) {
	l, _ := newBufferLogger(t)

	tests := []struct {
		name      string
		header    string
		wantExact string
	}{
		{"generated", "", ""},
		{"propagated", "abc-123", "abc-123"},
		{"oversized replaced", strings.Repeat("x", maxRequestIDLength+1), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID, ctxIP string
			h := RequestID(l, false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				ctxID = logger.RequestIDFromContext(r.Context())
				ctxIP = logger.ClientIPFromContext(r.Context())
			}))

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.0.2.7:5555"
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != ctxID {
				t.Errorf("header %q != context %q", got, ctxID)
			}
			if tt.wantExact != "" && got != tt.wantExact {
				t.Errorf("request id = %q, want %q", got, tt.wantExact)
			}
			if tt.wantExact == "" && !strings.HasPrefix(got, "req-") {
				t.Errorf("request id = %q, want req- prefix", got)
			}
			if ctxIP != "192.0.2.7" {
				t.Errorf("client ip = %q, want 192.0.2.7", ctxIP)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.0.2.1:1234", nil, false, "192.0.2.1"},
		{"ipv6 remote", "[2001:db8::1]:443", nil, false, "2001:db8::1"},
		{"no port", "192.0.2.1", nil, false, "192.0.2.1"},
		{"xff ignored untrusted", "192.0.2.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9"}, false, "192.0.2.1"},
		{"xff trusted", "192.0.2.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, true, "203.0.113.9"},
		{"real ip trusted", "192.0.2.1:1", map[string]string{"X-Real-IP": "203.0.113.5"}, true, "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	buf := &bytes.Buffer{}
	sl := slog.New(slog.NewJSONHandler(buf, nil))

	h := Recover(sl)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != "AM-SYS-5000" {
		t.Errorf("X-Error-Code = %q, want AM-SYS-5000", got)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "AM-SYS-5000" {
		t.Errorf("code = %q", body.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Error("panic was not logged")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BypassSecret: "let-me-in"})
	obs := &fakeObserver{}
	h := RateLimit(limiter, obs)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(bypass string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/auth/login", nil)
		r.RemoteAddr = "198.51.100.4:9000"
		if bypass != "" {
			r.Header.Set(DefaultBypassHeader, bypass)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	if rec := send(""); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := send("")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := rec.Header().Get("X-Error-Code"); got != "AM-SYS-4290" {
		t.Errorf("X-Error-Code = %q, want AM-SYS-4290", got)
	}
	if rec := send("wrong"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("wrong bypass status = %d, want 429", rec.Code)
	}
	if rec := send("let-me-in"); rec.Code != http.StatusNoContent {
		t.Errorf("bypass status = %d, want 204", rec.Code)
	}
	if obs.rateLimited != 2 {
		t.Errorf("rateLimited = %d, want 2", obs.rateLimited)
	}
}

func TestAudit(t *testing.T) {
	l, buf := newBufferLogger(t)

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Error-Code", "AM-AUTH-4030")
		w.WriteHeader(http.StatusForbidden)
	}), RequestID(l, false), Audit())

	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.Header.Set(RequestIDHeader, "req-audit")
	h.ServeHTTP(httptest.NewRecorder(), r)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log: %v (%s)", err, buf.String())
	}
	want := map[string]any{
		"level":      "WARN",
		"request_id": "req-audit",
		"path":       "/auth/login",
		"status":     float64(403),
		"error_code": "AM-AUTH-4030",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestMetrics(t *testing.T) {
	obs := &fakeObserver{}
	h := Metrics(obs, "POST /auth/login")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/auth/login", nil))

	if len(obs.routes) != 1 || obs.routes[0] != "POST /auth/login" {
		t.Errorf("routes = %v", obs.routes)
	}
	if obs.statuses[0] != http.StatusForbidden {
		t.Errorf("status = %d, want first written 403", obs.statuses[0])
	}
}

func TestResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := wrapResponseWriter(rec)
	if _, err := w.Write([]byte("ok")); err != nil {
		t.Fatal(err)
	}
	if w.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", w.statusCode)
	}
	if wrapResponseWriter(w) != w {
		t.Error("wrapResponseWriter re-wrapped an existing wrapper")
	}
}
