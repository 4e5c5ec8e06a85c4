// Package ratelimit provides per-client token bucket rate limiting.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/debsources/debsources/internal/metrics"
	"github.com/debsources/debsources/pkg/protocol"
)

// RateLimiter implements per-client token bucket rate limiting at a fixed
// number of requests per minute.
type RateLimiter struct {
	mu      sync.Mutex
	rpm     int
	buckets map[string]*tokenBucket
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// New creates a limiter allowing rpm requests per minute per client.
// rpm=0 means unlimited.
func New(rpm int) *RateLimiter {
	return &RateLimiter{
		rpm:     rpm,
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) refillRate() float64 {
	return float64(rl.rpm) / 60.0
}

// Allow checks if a request from the given client should be allowed.
func (rl *RateLimiter) Allow(client string) bool {
	if rl.rpm <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[client]
	if !ok {
		bucket = &tokenBucket{tokens: float64(rl.rpm), lastRefill: now}
		rl.buckets[client] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.tokens += elapsed * rl.refillRate()
	if bucket.tokens > float64(rl.rpm) {
		bucket.tokens = float64(rl.rpm)
	}
	bucket.lastRefill = now

	if bucket.tokens < 1 {
		return false
	}

	bucket.tokens--
	return true
}

// RetryAfter returns the number of seconds until the next token is available.
func (rl *RateLimiter) RetryAfter(client string) int {
	if rl.rpm <= 0 {
		return 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[client]
	if !ok || bucket.tokens >= 1 {
		return 0
	}

	needed := 1.0 - bucket.tokens
	seconds := needed / rl.refillRate()
	return int(seconds) + 1
}

// Cleanup removes buckets for clients that haven't been seen recently.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxAge)
	removed := 0
	for client, bucket := range rl.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, client)
			removed++
		}
	}
	return removed
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. Clients are keyed by remote IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.rpm <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !rl.Allow(client) {
			metrics.RecordRateLimitHit()
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(client)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  http.StatusTooManyRequests,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr. Forwarding headers are not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
