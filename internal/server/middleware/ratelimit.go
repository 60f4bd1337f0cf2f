package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// RateLimit limits each client IP to limit requests per window. Reads and
// writes use separate buckets so polling the round state cannot starve a
// client's bets. The limiter failing lets the request through.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(window/time.Second)))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), RateLimitKey(r), limit, window)
			if err == nil && !allowed {
				w.Header().Set("Retry-After", retryAfter)
				writeFailure(w, http.StatusTooManyRequests, "RATE_LIMITED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey is the limiter bucket for r, "<read|write>:<ip>".
func RateLimitKey(r *http.Request) string {
	class := "write"
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		class = "read"
	}
	return class + ":" + clientIP(r)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
