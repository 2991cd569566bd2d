package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/movestash/service-quoting-go/internal/auth"
)

// SessionRepo persists issued sessions. Expired rows are filtered out on
// read rather than actively swept; deletes are lazy.
type SessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// EnsureTable creates the sessions table if not exists (idempotent).
func (r *SessionRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id),
  kind TEXT NOT NULL,
  pending_secret TEXT,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Save inserts a session row.
func (r *SessionRepo) Save(ctx context.Context, s *auth.Session) error {
	const q = `INSERT INTO sessions (id, user_id, kind, pending_secret, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.UserID, s.Kind, s.PendingSecret, s.ExpiresAt, s.CreatedAt)
	return err
}

// Get returns a live session by id. Rows past expiry are treated as absent
// and yield sql.ErrNoRows like a missing row would.
func (r *SessionRepo) Get(ctx context.Context, id string) (*auth.Session, error) {
	const q = `SELECT id, user_id, kind, pending_secret, expires_at, created_at
		FROM sessions WHERE id=$1 AND expires_at > NOW()`
	var s auth.Session
	if err := r.db.GetContext(ctx, &s, q, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetPendingSecret stores an unconfirmed enrollment secret on the session
// row so it survives until the client confirms it with a code.
func (r *SessionRepo) SetPendingSecret(ctx context.Context, id, secret string) error {
	const q = `UPDATE sessions SET pending_secret=$2 WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, secret)
	return err
}

// Delete removes a session row. Deleting an already-absent row is not an
// error, so logout stays idempotent.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	return err
}
