package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/movestash/service-quoting-go/internal/user/entity"
)

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  email CITEXT UNIQUE NOT NULL,
  password_hash TEXT NOT NULL,
  totp_secret TEXT,
  totp_enabled BOOLEAN NOT NULL DEFAULT false,
  failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a provisioned account and returns the new ID.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash string) (int64, error) {
	const q = `INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`
	var id int64
	if err := r.db.GetContext(ctx, &id, q, email, passwordHash); err != nil {
		return 0, err
	}
	return id, nil
}

// GetByEmail returns a user matched by email (case-insensitive due to citext)
// or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT id, email, password_hash, totp_secret, totp_enabled,
		failed_attempts, locked_until, last_login_at, created_at, updated_at
	  FROM users WHERE email=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT id, email, password_hash, totp_secret, totp_enabled,
		failed_attempts, locked_until, last_login_at, created_at, updated_at
	  FROM users WHERE id=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// IncrementFailedAttempts increments the failure counter atomically and
// returns the new value. Password and TOTP failures both land here.
func (r *UserRepo) IncrementFailedAttempts(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE users SET failed_attempts = failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockUntil sets the lockout timestamp.
func (r *UserRepo) LockUntil(ctx context.Context, id int64, until time.Time) error {
	const q = `UPDATE users SET locked_until=$2, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, until)
	return err
}

// ResetLockout resets failure metrics on successful authentication.
func (r *UserRepo) ResetLockout(ctx context.Context, id int64) error {
	const q = `UPDATE users SET failed_attempts=0, locked_until=NULL, last_login_at=NOW(), updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// EnableTOTP persists the confirmed secret and flips the enabled flag.
func (r *UserRepo) EnableTOTP(ctx context.Context, id int64, secret string) error {
	const q = `UPDATE users SET totp_secret=$2, totp_enabled=true, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, secret)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("user not found")
	}
	return nil
}
