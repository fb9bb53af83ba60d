package auth

import (
	"context"
	"net/http"
	"strings"

	pkghttp "almanac-api/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	identityContextKey contextKey = "identity"
	claimsContextKey   contextKey = "claims"
)

// Identity is the authenticated principal derived from verified claims.
type Identity struct {
	Subject string
	Roles   []string
}

// RequireAuth validates the access token and injects the derived identity
// and raw claims into the request context. Token extraction prefers the
// access cookie and falls back to a Bearer Authorization header; any other
// authorization scheme is rejected outright rather than ignored.
func RequireAuth(ts *TokenService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := VerifyRequest(ts, r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			identity := &Identity{
				Subject: claims.Subject(),
				Roles:   claims.Roles(),
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			ctx = context.WithValue(ctx, claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VerifyRequest extracts and verifies the access token carried by r.
// Shared between the middleware and the whoami handler so both apply
// identical extraction rules.
func VerifyRequest(ts *TokenService, r *http.Request) (*Claims, bool) {
	token, ok := extractAccessToken(r)
	if !ok || token == "" {
		return nil, false
	}

	claims, err := ts.Verify(token, KindAccess)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// extractAccessToken returns the bearer credential and whether one was
// presented in an acceptable form. An Authorization header with a non-Bearer
// scheme is a presented-but-unacceptable credential: (_, false), never a
// silent fall-through.
func extractAccessToken(r *http.Request) (string, bool) {
	if token := GetTokenCookie(r, AccessTokenCookie); token != "" {
		return token, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	// Empty-string tokens are treated the same as absent ones.
	return token, token != ""
}

// IdentityFromContext extracts the authenticated identity from the request
// context. Nil when the request did not pass RequireAuth.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}

// ClaimsFromContext extracts the verified raw claims from the request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
