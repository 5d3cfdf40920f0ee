package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionLimiterAllowsBurstThenRejects(t *testing.T) {
	called := 0
	l := NewSessionLimiter(1, 2, func(r *http.Request) string { return "fixed-key" })
	handler := l.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 once the burst is exhausted", rec.Code)
	}
	if called != 2 {
		t.Errorf("handler called %d times, want 2", called)
	}
}

func TestSessionLimiterTracksKeysIndependently(t *testing.T) {
	l := NewSessionLimiter(1, 1, func(r *http.Request) string { return r.Header.Get("X-Caller") })
	handler := l.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, caller := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Caller", caller)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("caller %q: status = %d, want 200 (independent bucket)", caller, rec.Code)
		}
	}
}

func TestKeyByRemoteAddrStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := KeyByRemoteAddr(req); got != "10.0.0.1" {
		t.Errorf("KeyByRemoteAddr = %q, want 10.0.0.1", got)
	}
}

func TestKeyByRemoteAddrPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := KeyByRemoteAddr(req); got != "203.0.113.5" {
		t.Errorf("KeyByRemoteAddr = %q, want the first forwarded address", got)
	}
}

func TestAllowCreatesIndependentBucketsPerKey(t *testing.T) {
	l := NewSessionLimiter(1, 1, nil)
	if !l.Allow("a") {
		t.Fatal("expected the first request for key a to be allowed")
	}
	if l.Allow("a") {
		t.Fatal("expected the second immediate request for key a to be rejected")
	}
	if !l.Allow("b") {
		t.Fatal("expected key b to have its own, unexhausted bucket")
	}
}
