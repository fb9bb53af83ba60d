package middleware

import (
	"net/http"

	pkghttp "almanac-api/pkg/http"
)

// RequireHTTPS rejects plaintext requests to guarded endpoints. Enabled only
// when the deployment tier is hardened and the operator has not explicitly
// disabled enforcement; the encrypted-connection signals are the same
// priority-ordered checks the cookie transport uses, so TLS-terminating
// proxies are handled identically in both places.
func RequireHTTPS(enabled bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled && !pkghttp.IsSecureRequest(r) {
				pkghttp.WriteForbidden(w, "this endpoint requires an encrypted connection")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
