package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
	totpSkew       = 1
)

// TOTPEngine generates and verifies time-based one-time passwords. SHA-1,
// six digits and a 30 second period are required for compatibility with
// standard authenticator apps.
type TOTPEngine struct {
	Issuer string
}

func NewTOTPEngine(issuer string) *TOTPEngine {
	if strings.TrimSpace(issuer) == "" {
		issuer = "Movestash"
	}
	return &TOTPEngine{Issuer: issuer}
}

// GenerateSecret creates a fresh base32 secret for the given account and
// returns it together with the otpauth:// enrollment URI.
func (e *TOTPEngine) GenerateSecret(account string) (secret, uri string, err error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", "", fmt.Errorf("account is required for TOTP enrollment")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  totpSecretSize,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// CodeAt computes the six-digit code for the secret at the given time.
func (e *TOTPEngine) CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// Verify checks a submitted code against the secret, tolerating one period
// of clock drift in either direction. The underlying comparison is
// constant time.
func (e *TOTPEngine) Verify(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}
