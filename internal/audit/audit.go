package audit

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Entry is one append-only audit trail row.
type Entry struct {
	ID        int64     `db:"id"`
	Actor     string    `db:"actor"`
	Action    string    `db:"action"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// Repo persists audit entries.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// EnsureTable creates the audit_log table if not exists.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_log (
  id BIGINT PRIMARY KEY,
  actor TEXT NOT NULL,
  action TEXT NOT NULL,
  detail TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Insert appends one entry.
func (r *Repo) Insert(ctx context.Context, e *Entry) error {
	const q = `INSERT INTO audit_log (id, actor, action, detail, created_at) VALUES ($1,$2,$3,$4,$5)`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.Actor, e.Action, e.Detail, e.CreatedAt)
	return err
}

// Store is the persistence surface the recorder writes through.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
}

// Recorder is the write-side facade handed to services. Failures are logged
// and swallowed; an audit write must never fail the request it describes.
type Recorder struct {
	store  Store
	node   *snowflake.Node
	logger *zap.SugaredLogger
}

func NewRecorder(store Store, node *snowflake.Node, logger *zap.SugaredLogger) *Recorder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Recorder{store: store, node: node, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, actor, action, detail string) {
	e := &Entry{
		ID:        r.node.Generate().Int64(),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if err := r.store.Insert(ctx, e); err != nil {
		r.logger.Warnw("audit write failed", "action", action, "err", err)
	}
}
