package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// rateLimiter is a per-key sliding window limiter, grounded on the same
// in-memory sliding-window shape used elsewhere in the retrieved pack.
// windows are keyed by client IP; requests outside the window are dropped
// lazily on the next check rather than swept on a timer.
type rateLimiter struct {
	log    zerolog.Logger
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string][]time.Time
}

func newRateLimiter(limit int, window time.Duration, log zerolog.Logger) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string][]time.Time),
		log:     log.With().Str("component", "rate_limiter").Logger(),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	hits := rl.windows[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.windows[key] = kept
		return false
	}

	kept = append(kept, now)
	rl.windows[key] = kept
	return true
}

// handler returns rate-limiting middleware keyed on the request's real IP.
// Must sit behind middleware.RealIP so r.RemoteAddr is the client's address
// rather than a proxy hop.
func (rl *rateLimiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		if !rl.allow(key) {
			writeErrorStatus(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
