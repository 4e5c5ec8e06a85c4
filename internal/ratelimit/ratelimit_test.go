package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(rpm int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	rl := New(rpm)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := newLimiter(10)

	for i := 0; i < 10; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if rl.Allow("10.0.0.1") {
		t.Error("11th request should be denied")
	}
}

func TestRateLimiterUnlimited(t *testing.T) {
	rl, _ := newLimiter(0)

	for i := 0; i < 1000; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed (unlimited)", i+1)
		}
	}
	if got := rl.RetryAfter("10.0.0.1"); got != 0 {
		t.Errorf("expected retry-after 0 when unlimited, got %d", got)
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl, clock := newLimiter(60) // 1 token per second

	for i := 0; i < 60; i++ {
		rl.Allow("10.0.0.1")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("should be rate limited after exhausting tokens")
	}

	clock.advance(1100 * time.Millisecond)

	if !rl.Allow("10.0.0.1") {
		t.Error("should be allowed after refill")
	}
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl, _ := newLimiter(60)

	for i := 0; i < 60; i++ {
		rl.Allow("10.0.0.1")
	}

	if got := rl.RetryAfter("10.0.0.1"); got < 1 {
		t.Errorf("expected retry-after >= 1, got %d", got)
	}
	if got := rl.RetryAfter("10.0.0.2"); got != 0 {
		t.Errorf("expected retry-after 0 for unseen client, got %d", got)
	}
}

func TestRateLimiterMultipleClients(t *testing.T) {
	rl, _ := newLimiter(5)

	for i := 0; i < 5; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("client 1 request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("client 1 should be rate limited")
	}

	if !rl.Allow("10.0.0.2") {
		t.Error("client 2 should not be affected by client 1's rate limit")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newLimiter(10)

	rl.Allow("10.0.0.1")
	clock.advance(2 * time.Hour)
	rl.Allow("10.0.0.2")

	if removed := rl.Cleanup(time.Hour); removed != 1 {
		t.Fatalf("expected 1 bucket removed, got %d", removed)
	}

	rl.mu.Lock()
	_, stale := rl.buckets["10.0.0.1"]
	count := len(rl.buckets)
	rl.mu.Unlock()

	if stale || count != 1 {
		t.Errorf("expected only the recent bucket to remain, got %d buckets", count)
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newLimiter(2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/src/acl/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("192.0.2.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	// Same client, different source port.
	rec := do("192.0.2.1:6000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if rec := do("192.0.2.2:5000"); rec.Code != http.StatusOK {
		t.Errorf("other client: expected 200, got %d", rec.Code)
	}
}
