// Package ratelimit wraps httprate with the JSON 429 body used by every HTTP surface.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// Config holds configuration for the rate limiting middleware.
type Config struct {
	// Requests is the maximum number of requests allowed per key in Window.
	Requests int
	// Window is the sliding window size.
	Window time.Duration
	// KeyFunc extracts the limit key; nil limits per client IP.
	KeyFunc func(r *http.Request) (string, error)
}

// Middleware returns a sliding-window limiter. A zero Requests disables limiting.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	retryAfter := strconv.Itoa(max(int(cfg.Window.Seconds()), 1))
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}
