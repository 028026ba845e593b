package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter implements a fixed-window, per-client request counter.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*clientWindow
	rate        int
	window      time.Duration
	cleanupTick *time.Ticker
	stopCleanup chan struct{}
}

type clientWindow struct {
	count   int
	startAt time.Time
}

// NewRateLimiter creates a new rate limiter allowing rate requests per
// window per client.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows:     make(map[string]*clientWindow),
		rate:        rate,
		window:      window,
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopCleanup: make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup periodically drops stale client windows to bound memory use.
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			cutoff := time.Now().Add(-time.Hour)
			rl.mu.Lock()
			for key, w := range rl.windows {
				if w.startAt.Before(cutoff) {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cleanupTick.Stop()
	close(rl.stopCleanup)
}

// Allow reports whether a request from the given client key fits in the
// current window.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.startAt) >= rl.window {
		rl.windows[key] = &clientWindow{count: 1, startAt: now}
		return true
	}
	if w.count < rl.rate {
		w.count++
		return true
	}
	return false
}

// ClientKey extracts a client identifier from the request, preferring
// proxy-forwarded addresses over the raw remote address.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// RateLimit creates a middleware that rejects over-limit requests with 429.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
