package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sarwatch/backend/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")

	handler := middleware.CORSMiddleware(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/aois", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected origin echoed back, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCORSIgnoresUnlistedOrigin(t *testing.T) {
	handler := middleware.CORSMiddleware(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/aois", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers for unlisted origin, got %q", got)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler := middleware.CORSMiddleware(inner)
	req := httptest.NewRequest(http.MethodOptions, "/api/aois", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if called {
		t.Error("preflight must not reach the inner handler")
	}
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	handler := middleware.RateLimit(1, 2)(okHandler())

	status := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/aois", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if status() != http.StatusOK || status() != http.StatusOK {
		t.Fatal("burst requests should pass")
	}
	if status() != http.StatusTooManyRequests {
		t.Error("expected 429 once the burst is exhausted")
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	handler := middleware.RateLimit(1, 1)(okHandler())

	status := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/aois", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if status("10.0.0.1:1234") != http.StatusOK {
		t.Fatal("first client's first request should pass")
	}
	if status("10.0.0.1:1234") != http.StatusTooManyRequests {
		t.Error("first client should now be limited")
	}
	if status("10.0.0.2:1234") != http.StatusOK {
		t.Error("second client must have its own bucket")
	}
}
