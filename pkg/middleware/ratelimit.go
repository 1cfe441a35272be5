package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/plugmart/plugmart/pkg/contextkeys"
	"github.com/plugmart/plugmart/pkg/httputil"
)

// RateLimiter enforces a fixed-window request limit per caller.
// Authenticated requests are keyed by user ID, anonymous ones by remote
// address. Windows are tracked in an expiring LRU so idle callers age out.
type RateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	windows *expirable.LRU[string, *requestWindow]
}

type requestWindow struct {
	start time.Time
	count int
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		windows: expirable.NewLRU[string, *requestWindow](4096, nil, window),
	}
}

// Allow reports whether the caller identified by key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows.Get(key)
	if !ok || now.Sub(w.start) >= rl.window {
		rl.windows.Add(key, &requestWindow{start: now, count: 1})
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Middleware applies the rate limit to each request
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := contextkeys.GetUserID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !rl.Allow(key) {
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
