package ratelimit

import (
	"log/slog"
	"net/http"

	"github.com/netsentry/netsentry/common/httputil"
	"github.com/netsentry/netsentry/common/middleware"
	"github.com/netsentry/netsentry/ingest/internal/metrics"
)

// KeyFunc derives the limiter key for a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by the socket peer address.
func ByClientIP(r *http.Request) string {
	return middleware.ClientIP(r)
}

// ByTrustedClientIP keys requests by the client address, reading forwarding
// headers only from trusted proxies.
func ByTrustedClientIP(proxies *middleware.TrustedProxies) KeyFunc {
	return proxies.ClientIP
}

// Middleware rejects requests over the limit with 429. Limiter errors fail
// open so a broken backend never blocks intake.
func Middleware(limiter RateLimiter, scope string, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), keyFn(r))
			if err != nil {
				slog.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("scope", scope), slog.String("error", err.Error()))
				allowed = true
			}
			if !allowed {
				metrics.RateLimitHits.WithLabelValues(scope).Inc()
				httputil.WriteError(w, http.StatusTooManyRequests, "rate limit")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
