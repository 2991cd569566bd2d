package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/movestash/service-quoting-go/internal/quote"
)

// PricingRepo reads the zone, zip, rate and promotion configuration tables.
// These are maintained through the admin console; this service only reads.
type PricingRepo struct {
	db *sqlx.DB
}

func NewPricingRepo(db *sqlx.DB) *PricingRepo { return &PricingRepo{db: db} }

// EnsureTable creates the pricing configuration tables if not exists.
func (r *PricingRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS zones (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  delivery_fee_cents BIGINT NOT NULL,
  pickup_fee_cents BIGINT NOT NULL DEFAULT 0,
  relocation_fee_cents BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS zip_codes (
  zip TEXT PRIMARY KEY,
  zone_id TEXT NOT NULL REFERENCES zones(id)
);
CREATE TABLE IF NOT EXISTS pricing (
  container_size TEXT NOT NULL,
  location TEXT NOT NULL,
  monthly_cents BIGINT NOT NULL,
  first_month_cents BIGINT NOT NULL,
  PRIMARY KEY (container_size, location)
);
CREATE TABLE IF NOT EXISTS promotions (
  id TEXT PRIMARY KEY,
  code TEXT UNIQUE NOT NULL,
  applies_monthly BOOLEAN NOT NULL DEFAULT false,
  applies_delivery BOOLEAN NOT NULL DEFAULT false,
  percent_off INT NOT NULL DEFAULT 0,
  flat_off_cents BIGINT NOT NULL DEFAULT 0,
  active BOOLEAN NOT NULL DEFAULT false,
  starts_at TIMESTAMPTZ,
  ends_at TIMESTAMPTZ
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// ZoneForZip resolves the delivery zone for a ZIP or sql.ErrNoRows.
func (r *PricingRepo) ZoneForZip(ctx context.Context, zip string) (*quote.Zone, error) {
	const q = `SELECT z.id, z.name, z.delivery_fee_cents, z.pickup_fee_cents, z.relocation_fee_cents
		FROM zones z JOIN zip_codes zc ON zc.zone_id = z.id
		WHERE zc.zip = $1`
	var zone quote.Zone
	if err := r.db.GetContext(ctx, &zone, q, zip); err != nil {
		return nil, err
	}
	return &zone, nil
}

// Rate returns the configured rate for a (container size, location) pair or
// sql.ErrNoRows.
func (r *PricingRepo) Rate(ctx context.Context, containerSize, location string) (*quote.Rate, error) {
	const q = `SELECT container_size, location, monthly_cents, first_month_cents
		FROM pricing WHERE container_size=$1 AND location=$2`
	var rate quote.Rate
	if err := r.db.GetContext(ctx, &rate, q, containerSize, location); err != nil {
		return nil, err
	}
	return &rate, nil
}

// Promotion returns a promotion row by id or sql.ErrNoRows. Activity window
// checks belong to the pricing engine, not the query.
func (r *PricingRepo) Promotion(ctx context.Context, id string) (*quote.Promotion, error) {
	const q = `SELECT id, code, applies_monthly, applies_delivery, percent_off, flat_off_cents,
		active, starts_at, ends_at
	  FROM promotions WHERE id=$1`
	var p quote.Promotion
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		return nil, err
	}
	return &p, nil
}
