package httpserver

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiter_Allow(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{RequestsPerMinute: 3})
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("4th request allowed, want rejected")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other IP rejected")
	}

	// One token refills every 20s at 3/min.
	now = now.Add(21 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("request after refill rejected")
	}
}

func TestIPRateLimiter_Disabled(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{})
	for i := 0; i < 100; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if l.Tracked() != 0 {
		t.Errorf("Tracked() = %d, want 0", l.Tracked())
	}
}

func TestIPRateLimiter_SetConfig(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{RequestsPerMinute: 1})
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	if l.Allow("10.0.0.1") {
		t.Fatal("second request allowed at 1/min")
	}

	l.SetConfig(RateLimitConfig{RequestsPerMinute: 600})
	now = now.Add(time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("request rejected after raising the limit")
	}
	if got := l.Config().BypassHeader; got != DefaultBypassHeader {
		t.Errorf("BypassHeader = %q, want default", got)
	}
}

func TestIPRateLimiter_Bypassed(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   bool
	}{
		{"match", "s3cret", "s3cret", true},
		{"mismatch", "s3cret", "other", false},
		{"missing header", "s3cret", "", false},
		{"bypass disabled", "", "", false},
		{"bypass disabled ignores header", "", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewIPRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BypassSecret: tt.secret})
			r := httptest.NewRequest("POST", "/auth/login", nil)
			if tt.header != "" {
				r.Header.Set(DefaultBypassHeader, tt.header)
			}
			if got := l.Bypassed(r); got != tt.want {
				t.Errorf("Bypassed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{RequestsPerMinute: 10})
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(visitorIdleTTL / 2)
	l.Allow("10.0.0.2")

	now = now.Add(visitorIdleTTL/2 + time.Second)
	if removed := l.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if l.Tracked() != 1 {
		t.Errorf("Tracked() = %d, want 1", l.Tracked())
	}
}
