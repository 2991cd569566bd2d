package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/movestash/service-quoting-go/internal/quote"
)

// QuoteRepo provides data access for the quotes table and the staff quote
// number counter.
type QuoteRepo struct {
	db *sqlx.DB
}

func NewQuoteRepo(db *sqlx.DB) *QuoteRepo { return &QuoteRepo{db: db} }

// EnsureTable creates the quotes table and counter row if not exists.
func (r *QuoteRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS quotes (
  id UUID PRIMARY KEY,
  public_id TEXT UNIQUE NOT NULL,
  quote_number BIGINT NOT NULL,
  zip TEXT NOT NULL,
  items JSONB NOT NULL,
  promo_id TEXT,
  override_monthly_cents BIGINT,
  override_reason TEXT,
  total_monthly_cents BIGINT NOT NULL,
  first_month_total_cents BIGINT NOT NULL,
  due_today_cents BIGINT NOT NULL,
  created_by BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS staff_quote_counter (
  id INT PRIMARY KEY,
  value BIGINT NOT NULL
);
INSERT INTO staff_quote_counter (id, value) VALUES (1, 1000) ON CONFLICT (id) DO NOTHING;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// PublicIDExists reports whether a candidate public id is already taken.
func (r *QuoteRepo) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM quotes WHERE public_id=$1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, publicID); err != nil {
		return false, err
	}
	return exists, nil
}

// NextQuoteNumber increments the single-row counter and returns the new
// value in one atomic statement, so concurrent staff quote creation cannot
// observe duplicate numbers.
func (r *QuoteRepo) NextQuoteNumber(ctx context.Context) (int64, error) {
	const q = `UPDATE staff_quote_counter SET value = value + 1 WHERE id = 1 RETURNING value`
	var v int64
	if err := r.db.GetContext(ctx, &v, q); err != nil {
		return 0, err
	}
	return v, nil
}

// Create inserts a quote row. The UNIQUE constraint on public_id is the
// final arbiter against a colliding id that slipped past the pre-check.
func (r *QuoteRepo) Create(ctx context.Context, q *quote.Quote) error {
	const stmt = `INSERT INTO quotes
		(id, public_id, quote_number, zip, items, promo_id, override_monthly_cents, override_reason,
		 total_monthly_cents, first_month_total_cents, due_today_cents, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.db.ExecContext(ctx, stmt,
		q.ID, q.PublicID, q.QuoteNumber, q.Zip, q.ItemsRaw, q.PromoID,
		q.OverrideMonthlyCents, q.OverrideReason,
		q.TotalMonthlyCents, q.FirstMonthTotalCents, q.DueTodayCents,
		q.CreatedBy, q.CreatedAt)
	return err
}

// GetByPublicID returns a quote by its public code or sql.ErrNoRows.
func (r *QuoteRepo) GetByPublicID(ctx context.Context, publicID string) (*quote.Quote, error) {
	const q = `SELECT id, public_id, quote_number, zip, items, promo_id,
		override_monthly_cents, override_reason,
		total_monthly_cents, first_month_total_cents, due_today_cents,
		created_by, created_at
	  FROM quotes WHERE public_id=$1`
	var row quote.Quote
	if err := r.db.GetContext(ctx, &row, q, publicID); err != nil {
		return nil, err
	}
	return &row, nil
}
