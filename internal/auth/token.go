package auth

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carried inside a signed bearer token. The registered ID field holds
// the session identifier, so a token can be checked against the session
// store after its signature passes.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// UserID parses the subject claim back into the numeric user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// SessionID returns the session identifier embedded in the token.
func (c *Claims) SessionID() string { return c.ID }

// TokenCodec signs and verifies compact bearer tokens with HMAC-SHA256.
type TokenCodec struct {
	secret []byte
}

func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{secret: secret}
}

// Sign issues a token for the given identity with a TTL in the compact
// grammar understood by ParseTTL.
func (c *TokenCodec) Sign(userID int64, email, sessionID, ttl string) (string, error) {
	return c.SignExpiring(userID, email, sessionID, ParseTTL(ttl))
}

// SignExpiring issues a token valid for the given duration.
func (c *TokenCodec) SignExpiring(userID int64, email, sessionID string, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Email: email,
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify parses and validates a token. Any failure — malformed structure,
// bad signature, expired claims — yields nil claims and a sentinel error;
// decode panics inside the jwt library do not escape past this boundary.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var ttlPattern = regexp.MustCompile(`^(\d+)([hmd])$`)

// ParseTTL parses the compact duration grammar <integer><unit> where unit is
// h, m or d. Unrecognized input falls back to one hour.
func ParseTTL(s string) time.Duration {
	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Hour
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Hour
	}
	switch m[2] {
	case "h":
		return time.Duration(n) * time.Hour
	case "m":
		return time.Duration(n) * time.Minute
	case "d":
		return time.Duration(n) * 24 * time.Hour
	}
	return time.Hour
}
