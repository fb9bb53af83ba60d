package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"almanac-api/internal/auth"
	"almanac-api/internal/ratelimit"
	pkghttp "almanac-api/pkg/http"
)

// AuthHandler orchestrates the session flows: login, refresh, logout and
// whoami. It owns no policy of its own; the token service, the credential
// strategy and the attempt limiter are injected at construction time.
type AuthHandler struct {
	tokens      *auth.TokenService
	credentials auth.CredentialVerifier
	totp        *auth.TOTPVerifier
	limiter     *ratelimit.Limiter
	cookieCfg   auth.CookieConfig
	ipConfig    *pkghttp.IPConfig
	roles       []string
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	tokens *auth.TokenService,
	credentials auth.CredentialVerifier,
	totp *auth.TOTPVerifier,
	limiter *ratelimit.Limiter,
	cookieCfg auth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		tokens:      tokens,
		credentials: credentials,
		totp:        totp,
		limiter:     limiter,
		cookieCfg:   cookieCfg,
		ipConfig:    ipConfig,
		roles:       []string{"admin"},
		logger:      logger,
	}
}

// Request and response DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
	OTP        string `json:"otp"`
}

// RefreshRequest represents the request body for token refresh when the
// refresh cookie is not available
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries issued token material for non-cookie clients
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// WhoamiResponse describes the authenticated principal
type WhoamiResponse struct {
	Authenticated bool     `json:"authenticated"`
	Username      string   `json:"username"`
	Roles         []string `json:"roles"`
	Exp           int64    `json:"exp"`
}

// Login authenticates the administrative principal.
// Flow: attempt-ledger check, credential check, ledger bookkeeping, token
// pair issuance, cookie transport. All credential failures share one 401
// shape; only the rate limit reveals more (the retry delay), which
// well-behaved clients need and is not secret.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientID := pkghttp.ExtractClientIP(r, h.ipConfig)

	if h.limiter.IsLimited(clientID) {
		retryAfter := h.limiter.RetryAfterSeconds(clientID)
		h.logger.Warn("login rejected, client rate limited",
			slog.String("client", clientID),
			slog.Int("retry_after", retryAfter))
		pkghttp.WriteTooManyRequests(w, "too many failed login attempts", retryAfter)
		return
	}

	ok := h.credentials.VerifyCredentials(req.Username, req.Password)
	if ok && h.totp != nil {
		ok = h.totp.ValidateCode(req.OTP)
	}

	if !ok {
		if err := h.limiter.RecordFailure(clientID); err != nil {
			h.logger.Error("failed to record login attempt", slog.Any("error", err))
		}
		h.logger.Warn("failed login attempt",
			slog.String("client", clientID),
			slog.Int("remaining_attempts", h.limiter.RemainingAttempts(clientID)))
		pkghttp.WriteUnauthorized(w, "invalid credentials")
		return
	}

	if err := h.limiter.ClearAttempts(clientID); err != nil {
		h.logger.Error("failed to clear login attempts", slog.Any("error", err))
	}

	accessToken, err := h.tokens.IssueAccess(req.Username, map[string]any{"roles": h.roles})
	if err != nil {
		h.logger.Error("failed to issue access token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal server error")
		return
	}
	refreshToken, err := h.tokens.IssueRefresh(req.Username)
	if err != nil {
		h.logger.Error("failed to issue refresh token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal server error")
		return
	}

	expiresIn := int(h.tokens.AccessTTL().Seconds())
	auth.SetAccessTokenCookie(w, r, accessToken, expiresIn, h.cookieCfg)
	auth.SetRefreshTokenCookie(w, r, refreshToken, int(h.tokens.RefreshTTL().Seconds()), req.RememberMe, h.cookieCfg)

	h.logger.Info("login succeeded", slog.String("subject", req.Username))

	pkghttp.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    "Bearer",
	})
}

// Refresh exchanges a refresh token for a new access token. The cookie is
// preferred; a body field serves clients that do not hold cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := auth.GetTokenCookie(r, auth.RefreshTokenCookie)
	if refreshToken == "" {
		var req RefreshRequest
		// Body is optional when the cookie is present, so decode errors
		// are not reported on their own.
		_ = json.NewDecoder(r.Body).Decode(&req)
		refreshToken = req.RefreshToken
	}

	accessToken, err := h.tokens.Refresh(refreshToken)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "invalid or expired refresh token")
		return
	}

	expiresIn := int(h.tokens.AccessTTL().Seconds())
	auth.SetAccessTokenCookie(w, r, accessToken, expiresIn, h.cookieCfg)

	pkghttp.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

// Logout clears both token cookies. It always succeeds: the subject is
// extracted without verification purely for the audit log, and extraction
// failure never fails the logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.GetTokenCookie(r, auth.AccessTokenCookie)
	if subject := h.tokens.ExtractSubjectUnverified(token); subject != "" {
		h.logger.Info("logout", slog.String("subject", subject))
	} else {
		h.logger.Info("logout")
	}

	auth.ClearAccessTokenCookie(w, r, h.cookieCfg)
	auth.ClearRefreshTokenCookie(w, r, h.cookieCfg)

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Whoami returns the identity behind the presented access token. It exists
// for clients that cannot read their HttpOnly cookies; extraction rules are
// identical to the authentication middleware's.
func (h *AuthHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.VerifyRequest(h.tokens, r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, WhoamiResponse{
		Authenticated: true,
		Username:      claims.Subject(),
		Roles:         claims.Roles(),
		Exp:           claims.ExpiresAt().Unix(),
	})
}
