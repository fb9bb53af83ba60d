package auth

import (
	"errors"
	"time"

	"almanac-api/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates the two token kinds sharing one signing key.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalidToken is the single verification failure. Malformed, tampered,
// expired, not-yet-valid and wrong-kind tokens all map to it so callers
// cannot leak which detail was wrong.
var ErrInvalidToken = errors.New("invalid token")

// maxTokenLength bounds the tokens we are willing to parse. Anything larger
// is rejected before it reaches the JWT parser.
const maxTokenLength = 8192

// registeredClaimNames are the claims the service owns. Caller-supplied
// claims with these names are always overwritten at issuance and stripped
// when claims are carried forward through a refresh exchange.
var registeredClaimNames = map[string]bool{
	"iss": true, "aud": true, "sub": true, "iat": true,
	"nbf": true, "exp": true, "jti": true, "kind": true,
}

// Claims is a verified (or, for ExtractSubjectUnverified, merely decoded)
// claim set.
type Claims struct {
	raw jwt.MapClaims
}

func (c *Claims) Subject() string {
	sub, _ := c.raw.GetSubject()
	return sub
}

func (c *Claims) Kind() Kind {
	kind, _ := c.raw["kind"].(string)
	return Kind(kind)
}

func (c *Claims) ExpiresAt() time.Time {
	exp, err := c.raw.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Roles returns the role strings carried by an access token, if any.
func (c *Claims) Roles() []string {
	values, ok := c.raw["roles"].([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

// Extra returns the non-registered claims, the set carried forward by the
// refresh exchange.
func (c *Claims) Extra() map[string]any {
	extra := make(map[string]any)
	for name, value := range c.raw {
		if !registeredClaimNames[name] {
			extra[name] = value
		}
	}
	return extra
}

// TokenService issues and verifies the access/refresh token pair.
// Stateless: token validity is entirely a function of signature, expiry and
// kind, so rotating the signing secret invalidates everything at once.
type TokenService struct {
	secret     []byte
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService from validated signing configuration.
func NewTokenService(cfg config.SigningConfig) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.Secret),
		method:     jwt.GetSigningMethod(cfg.Algorithm),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (ts *TokenService) AccessTTL() time.Duration {
	return ts.accessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (ts *TokenService) RefreshTTL() time.Duration {
	return ts.refreshTTL
}

// IssueAccess creates a signed access token for subject. Caller-supplied
// extra claims are carried in the token, but registered claims always win so
// a caller can never forge exp, sub or kind.
func (ts *TokenService) IssueAccess(subject string, extra map[string]any) (string, error) {
	return ts.issue(subject, KindAccess, ts.accessTTL, extra)
}

// IssueRefresh creates a signed refresh token for subject.
func (ts *TokenService) IssueRefresh(subject string) (string, error) {
	return ts.issue(subject, KindRefresh, ts.refreshTTL, nil)
}

func (ts *TokenService) issue(subject string, kind Kind, ttl time.Duration, extra map[string]any) (string, error) {
	now := ts.now()

	claims := jwt.MapClaims{}
	for name, value := range extra {
		claims[name] = value
	}
	claims["iss"] = ts.issuer
	claims["aud"] = ts.audience
	claims["sub"] = subject
	claims["iat"] = jwt.NewNumericDate(now)
	claims["nbf"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(ttl))
	claims["jti"] = uuid.New().String()
	claims["kind"] = string(kind)

	token := jwt.NewWithClaims(ts.method, claims)
	return token.SignedString(ts.secret)
}

// Verify checks signature, expiry, not-before and kind. Any failure returns
// ErrInvalidToken; callers must not distinguish the sub-reasons.
func (ts *TokenService) Verify(tokenString string, expectedKind Kind) (*Claims, error) {
	if tokenString == "" || len(tokenString) > maxTokenLength {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{ts.method.Alg()}),
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)

	raw := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, raw, func(token *jwt.Token) (any, error) {
		return ts.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims := &Claims{raw: raw}
	if claims.Kind() != expectedKind {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Refresh exchanges a valid refresh token for a new access token, carrying
// the refresh token's non-standard claims forward. Any verification failure
// returns ErrInvalidToken so the caller maps it to a uniform 401.
func (ts *TokenService) Refresh(refreshToken string) (string, error) {
	claims, err := ts.Verify(refreshToken, KindRefresh)
	if err != nil {
		return "", ErrInvalidToken
	}
	return ts.IssueAccess(claims.Subject(), claims.Extra())
}

// ExtractSubjectUnverified decodes the claims segment without checking the
// signature. For logging and audit only; never an authentication decision.
func (ts *TokenService) ExtractSubjectUnverified(tokenString string) string {
	if tokenString == "" || len(tokenString) > maxTokenLength {
		return ""
	}

	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, raw); err != nil {
		return ""
	}

	claims := &Claims{raw: raw}
	return claims.Subject()
}
