package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/service"
)

// IPRateLimitMiddleware caps how often one network address may hit a route
// group. Scopes keep counters apart so draining the consume budget does not
// lock a client out of status queries.
type IPRateLimitMiddleware struct {
	limiter *service.RateLimiter
	limit   int
	window  time.Duration
	scope   string
}

func NewIPRateLimitMiddleware(limiter *service.RateLimiter, limit int, window time.Duration, scope string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		scope:   scope,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.scope + ":" + clientIP(r)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)
		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
