package middleware

import (
	"net/http"

	pkghttp "almanac-api/pkg/http"
)

// SecurityHeadersConfig holds security headers configuration
type SecurityHeadersConfig struct {
	Hardened bool
}

// SecurityHeaders returns a middleware that adds security headers to all responses
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// DENY prevents the API responses from being framed at all
			w.Header().Set("X-Frame-Options", "DENY")

			// nosniff prevents browsers from MIME-sniffing a response away
			// from the declared Content-Type
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Referrer-Policy: sends referrer only for same-origin requests
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Strict-Transport-Security only on encrypted connections in
			// hardened tiers
			if config.Hardened && pkghttp.IsSecureRequest(r) {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
