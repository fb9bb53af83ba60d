package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPVerifier validates one-time codes for the administrative principal.
// The secret is provisioned out of band (environment), so there is no
// enrollment surface here.
type TOTPVerifier struct {
	secret string
	now    func() time.Time
}

// NewTOTPVerifier creates a verifier for a base32-encoded shared secret.
// A nil verifier (empty secret) means the second factor is not configured.
func NewTOTPVerifier(secret string) *TOTPVerifier {
	if secret == "" {
		return nil
	}
	return &TOTPVerifier{
		secret: secret,
		now:    time.Now,
	}
}

// ValidateCode checks a 6-digit code, allowing ±1 time step for clock drift.
func (v *TOTPVerifier) ValidateCode(code string) bool {
	valid, err := totp.ValidateCustom(code, v.secret, v.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
