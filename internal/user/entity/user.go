package entity

import "time"

// User represents a staff account row in the `users` table. Accounts are
// provisioned out of band; this service never deletes them, it only mutates
// the authentication bookkeeping columns.
type User struct {
	ID             int64      `db:"id"`
	Email          string     `db:"email"`
	PasswordHash   string     `db:"password_hash"`
	TOTPSecret     *string    `db:"totp_secret"`
	TOTPEnabled    bool       `db:"totp_enabled"`
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
	LastLoginAt    *time.Time `db:"last_login_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Locked reports whether the account is locked out as of now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
