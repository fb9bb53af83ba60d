package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration errors. All of them are fatal: a process that fails to load
// its signing configuration refuses to serve protected routes rather than
// falling back to a permissive state.
var (
	ErrMissingOrWeakSecret  = errors.New("signing secret missing or too short")
	ErrPlaceholderSecret    = errors.New("signing secret matches a known placeholder value")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrInvalidLifetime      = errors.New("token lifetime must be a positive integer of seconds")
	ErrMissingCredentials   = errors.New("admin password hash is required in hardened environments")
)

const (
	MinSecretLength = 32

	DefaultAccessTokenTTL  = 3600 * time.Second
	DefaultRefreshTokenTTL = 604800 * time.Second
)

// supportedAlgorithms is the closed allow-list of HMAC variants.
var supportedAlgorithms = []string{"HS256", "HS384", "HS512"}

// placeholderPatterns are substrings that mark a secret as a shipped example
// value. Matched case-insensitively in hardened environments only: the secret
// may be technically well-formed and is still rejected.
var placeholderPatterns = []string{
	"changeme",
	"change-this",
	"secret-key",
	"example",
	"password",
	"placeholder",
	"your-secret",
	"insecure",
	"xxxxxxxx",
	"s3cr3t",
}

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	RequireHTTPS   bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// SigningConfig is the validated token-signing material. Immutable once
// loaded; shared process-wide without further locking.
type SigningConfig struct {
	Secret          string
	Algorithm       string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type AuthConfig struct {
	Signing           SigningConfig
	AdminUsername     string
	AdminPasswordHash string
	AdminTOTPSecret   string
	CookieDomain      string
	CleanupInterval   time.Duration
}

type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
	Dir         string
}

// Load reads and validates configuration from the environment.
// Pure validation plus construction; the only side effect is reading the
// optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	hardened := IsHardened(env)

	signing, err := loadSigningConfig(hardened)
	if err != nil {
		return nil, err
	}

	adminHash := getEnv("ADMIN_PASSWORD_HASH", "")
	if adminHash == "" && hardened {
		return nil, ErrMissingCredentials
	}

	rateLimitWindow, err := getEnvAsSeconds("RATE_LIMIT_WINDOW", 900*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "")),
			TrustedProxies: splitCSV(getEnv("TRUSTED_PROXIES", "")),
			RequireHTTPS:   hardened && getEnv("AUTH_REQUIRE_HTTPS", "true") != "false",
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			Signing:           signing,
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: adminHash,
			AdminTOTPSecret:   getEnv("ADMIN_TOTP_SECRET", ""),
			CookieDomain:      getEnv("COOKIE_DOMAIN", ""),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			Window:      rateLimitWindow,
			Dir:         getEnv("RATE_LIMIT_DIR", "./data/ratelimit"),
		},
	}

	return cfg, nil
}

// IsHardened reports whether the environment tier enforces the stricter
// security policy (placeholder-secret rejection, mandatory HTTPS,
// mandatory configured credentials).
func IsHardened(env string) bool {
	return env == "staging" || env == "production"
}

func loadSigningConfig(hardened bool) (SigningConfig, error) {
	secret := getEnv("AUTH_JWT_SECRET", "")
	if len(secret) < MinSecretLength {
		return SigningConfig{}, fmt.Errorf("%w: need at least %d characters, got %d",
			ErrMissingOrWeakSecret, MinSecretLength, len(secret))
	}

	if hardened {
		secretLower := strings.ToLower(secret)
		for _, pattern := range placeholderPatterns {
			if strings.Contains(secretLower, pattern) {
				return SigningConfig{}, fmt.Errorf("%w: contains %q", ErrPlaceholderSecret, pattern)
			}
		}
	}

	algorithm := getEnv("AUTH_JWT_ALGORITHM", "HS256")
	if !isSupportedAlgorithm(algorithm) {
		return SigningConfig{}, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnsupportedAlgorithm, algorithm, strings.Join(supportedAlgorithms, ", "))
	}

	accessTTL, err := getEnvAsSeconds("AUTH_ACCESS_TOKEN_TTL", DefaultAccessTokenTTL)
	if err != nil {
		return SigningConfig{}, err
	}
	refreshTTL, err := getEnvAsSeconds("AUTH_REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL)
	if err != nil {
		return SigningConfig{}, err
	}

	return SigningConfig{
		Secret:          secret,
		Algorithm:       algorithm,
		Issuer:          getEnv("AUTH_JWT_ISSUER", "almanac-api"),
		Audience:        getEnv("AUTH_JWT_AUDIENCE", "almanac-api"),
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	}, nil
}

func isSupportedAlgorithm(algorithm string) bool {
	for _, supported := range supportedAlgorithms {
		if algorithm == supported {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// getEnvAsSeconds parses a token lifetime as an integer number of seconds.
// Absent values fall back to the default; present but non-numeric or
// non-positive values are configuration errors, not fallbacks.
func getEnvAsSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidLifetime, key, value)
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
