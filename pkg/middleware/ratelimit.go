package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/oderahub/eventhash/pkg/ratelimit"
)

// RateLimit rejects requests over the limiter's window with 429, keyed by
// client IP. Duplicate submission of one payment is already handled by the
// payment reference guard; this only shields the mirror node and the
// ledger operator from request floods. A limiter error fails open.
func RateLimit(limiter *ratelimit.Limiter, scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := limiter.Allow(r.Context(), scope, clientIP(r))
			if err != nil {
				slog.Error("rate limiter unavailable, failing open", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   fmt.Sprintf("Too many requests; retry in %ds", retryAfter),
				})
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
