package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/movieon/internal/platform/profile"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	h := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/", nil)
		req.RemoteAddr = "1.2.3.4:1234"
		if code := serve(h, req); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}

	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	if code := serve(h, req); code != http.StatusTooManyRequests {
		t.Fatalf("4th request: expected 429, got %d", code)
	}
}

func TestRateLimiter_KeyedByProfile(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	h := rl.Middleware(okHandler())

	for _, id := range []string{"p1", "p2"} {
		req := httptest.NewRequest("POST", "/", nil)
		req.RemoteAddr = "1.1.1.1:1234"
		req = req.WithContext(profile.WithID(req.Context(), id))
		if code := serve(h, req); code != http.StatusOK {
			t.Fatalf("profile %s: expected 200, got %d", id, code)
		}
	}

	req := httptest.NewRequest("POST", "/", nil)
	req = req.WithContext(profile.WithID(req.Context(), "p1"))
	if code := serve(h, req); code != http.StatusTooManyRequests {
		t.Fatalf("p1 second: expected 429, got %d", code)
	}
}

func TestRateLimiter_ForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	h := rl.Middleware(okHandler())

	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	serve(h, req)

	req = httptest.NewRequest("POST", "/", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.2")
	if code := serve(h, req); code != http.StatusTooManyRequests {
		t.Fatalf("same client through another proxy: expected 429, got %d", code)
	}
}

func TestRateLimiter_RefillsAndPrunes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || rl.allow("a") {
		t.Fatal("expected one token then empty bucket")
	}
	now = now.Add(time.Second)
	if !rl.allow("a") {
		t.Fatal("expected refill after one second")
	}

	now = now.Add(2 * bucketIdleTTL)
	rl.allow("b")
	rl.mu.Lock()
	_, stale := rl.buckets["a"]
	rl.mu.Unlock()
	if stale {
		t.Fatal("idle bucket was not pruned")
	}
}
