package auth

import "time"

// SessionKind tags what a session row authorizes. Temporary kinds shepherd a
// client through the two-step login; only an access session admits requests
// past the middleware.
type SessionKind string

const (
	// SessionAccess is a full access session backing a bearer token.
	SessionAccess SessionKind = "access"
	// SessionMFASetup is a 5-minute session issued to a user who has no
	// enrolled TOTP secret yet.
	SessionMFASetup SessionKind = "mfa_setup"
	// SessionTOTPVerify is a 5-minute session issued after a correct
	// password, awaiting the TOTP code.
	SessionTOTPVerify SessionKind = "totp_verify"
)

// Session is a persisted record of an issued token. Its ID doubles as the
// jti claim inside the signed token; an access session row is the sole
// authority that a token id is still live beyond signature validity.
//
// PendingSecret carries a generated-but-unconfirmed TOTP secret during
// enrollment. It is a typed column of its own, never folded into Kind.
type Session struct {
	ID            string      `db:"id"`
	UserID        int64       `db:"user_id"`
	Kind          SessionKind `db:"kind"`
	PendingSecret *string     `db:"pending_secret"`
	ExpiresAt     time.Time   `db:"expires_at"`
	CreatedAt     time.Time   `db:"created_at"`
}

// Expired reports whether the session is past its expiry. An expired session
// is inert and must be treated as absent.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
