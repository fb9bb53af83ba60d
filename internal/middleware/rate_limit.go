package middleware

import (
	"net/http"
	"time"

	pkghttp "almanac-api/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds request-flood limiting configuration. This is a
// plain per-IP request cap on the auth endpoints, independent of the
// failed-attempt ledger: it throttles traffic volume, the ledger throttles
// wrong passwords.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "request rate limit exceeded", 60)
		}),
	)
}
