package auth

import (
	"crypto/subtle"
	"log/slog"

	"almanac-api/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// DevDefaultPassword is the credential used when no password hash is
// configured in a non-hardened tier. Hardened tiers refuse to start without
// a configured hash, so this never reaches staging or production.
const DevDefaultPassword = "admin"

// CredentialVerifier checks the single administrative principal's
// credentials. Resolved once at startup into one of two strategies rather
// than branching on the deployment tier inside the login path.
type CredentialVerifier interface {
	VerifyCredentials(username, password string) bool
}

// hashCredentials verifies against a bcrypt hash. Username comparison is
// constant-time, and the password hash is always checked so a wrong username
// costs the same as a wrong password.
type hashCredentials struct {
	username     string
	passwordHash []byte
}

func (c *hashCredentials) VerifyCredentials(username, password string) bool {
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passwordOK := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)) == nil
	return usernameOK && passwordOK
}

// NewEnvCredentials builds a verifier from the operator-configured hash.
func NewEnvCredentials(username, passwordHash string) CredentialVerifier {
	return &hashCredentials{
		username:     username,
		passwordHash: []byte(passwordHash),
	}
}

// NewDevCredentials builds a verifier for the development default password.
// The hash is computed once here so the login path stays identical to the
// env-configured strategy.
func NewDevCredentials(username string) (CredentialVerifier, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DevDefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &hashCredentials{
		username:     username,
		passwordHash: hash,
	}, nil
}

// ResolveCredentials picks the credential-check strategy at startup.
// Hardened tiers always use the configured hash (config.Load already refused
// to start without one); elsewhere an absent hash falls back to the
// development default, loudly.
func ResolveCredentials(cfg config.AuthConfig, env string, logger *slog.Logger) (CredentialVerifier, error) {
	if cfg.AdminPasswordHash != "" {
		return NewEnvCredentials(cfg.AdminUsername, cfg.AdminPasswordHash), nil
	}
	logger.Warn("no ADMIN_PASSWORD_HASH configured, using development default credentials",
		slog.String("env", env),
		slog.String("username", cfg.AdminUsername))
	return NewDevCredentials(cfg.AdminUsername)
}
