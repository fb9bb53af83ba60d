package auth

import (
	"net/http"
	"time"

	pkghttp "almanac-api/pkg/http"
)

// Cookie names for the token pair.
const (
	AccessTokenCookie  = "almanac_access"
	RefreshTokenCookie = "almanac_refresh"
)

// refreshCookiePath restricts the refresh token to the auth surface so it is
// never replayed against ordinary API routes.
const refreshCookiePath = "/auth"

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain string // Empty string = current host only
}

// SetAccessTokenCookie sets the access token in an httpOnly cookie.
// Broad path, Lax SameSite, lifetime bound to the token's own expiry.
func SetAccessTokenCookie(w http.ResponseWriter, r *http.Request, token string, maxAge int, cfg CookieConfig) {
	setTokenCookie(w, r, AccessTokenCookie, token, "/", maxAge, http.SameSiteLaxMode, cfg)
}

// SetRefreshTokenCookie sets the refresh token in an httpOnly cookie.
// Path-restricted and strict SameSite. Session-scoped by default: only a
// "remember me" login persists it for the refresh lifetime.
func SetRefreshTokenCookie(w http.ResponseWriter, r *http.Request, token string, maxAge int, remember bool, cfg CookieConfig) {
	if !remember {
		maxAge = 0 // session cookie
	}
	setTokenCookie(w, r, RefreshTokenCookie, token, refreshCookiePath, maxAge, http.SameSiteStrictMode, cfg)
}

// ClearAccessTokenCookie expires the access token cookie.
func ClearAccessTokenCookie(w http.ResponseWriter, r *http.Request, cfg CookieConfig) {
	clearTokenCookie(w, r, AccessTokenCookie, "/", http.SameSiteLaxMode, cfg)
}

// ClearRefreshTokenCookie expires the refresh token cookie.
func ClearRefreshTokenCookie(w http.ResponseWriter, r *http.Request, cfg CookieConfig) {
	clearTokenCookie(w, r, RefreshTokenCookie, refreshCookiePath, http.SameSiteStrictMode, cfg)
}

// GetTokenCookie retrieves a token cookie value, empty string if absent.
func GetTokenCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, value, path string, maxAge int, sameSite http.SameSite, cfg CookieConfig) {
	secure := pkghttp.IsSecureRequest(r)

	// SameSite=None without Secure would be rejected by browsers outright;
	// downgrade to Lax instead of emitting a dead cookie.
	if sameSite == http.SameSiteNoneMode && !secure {
		sameSite = http.SameSiteLaxMode
	}

	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cookieDomain(r, cfg),
		MaxAge:   maxAge,
		HttpOnly: true, // never readable from script
		Secure:   secure,
		SameSite: sameSite,
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(w, cookie)
}

// clearTokenCookie expresses deletion as the same header shape with
// Max-Age=0 and an epoch Expires.
func clearTokenCookie(w http.ResponseWriter, r *http.Request, name, path string, sameSite http.SameSite, cfg CookieConfig) {
	secure := pkghttp.IsSecureRequest(r)
	if sameSite == http.SameSiteNoneMode && !secure {
		sameSite = http.SameSiteLaxMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   cookieDomain(r, cfg),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

// cookieDomain drops the configured Domain attribute for loopback hosts,
// which browsers reject.
func cookieDomain(r *http.Request, cfg CookieConfig) string {
	if pkghttp.IsLoopbackHost(r.Host) {
		return ""
	}
	return cfg.Domain
}
