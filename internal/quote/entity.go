package quote

import (
	"time"

	"github.com/google/uuid"
)

// PublicIDValidity is how long a quote stays quotable to the customer. The
// row outlives this; lookups just report it as expired.
const PublicIDValidity = 10 * 24 * time.Hour

// Item is one container on a quote.
type Item struct {
	ContainerSize string `json:"container_size"`
	Location      string `json:"location"`
}

// Zone is a geographic pricing tier resolved from a ZIP code.
type Zone struct {
	ID                 string `db:"id"`
	Name               string `db:"name"`
	DeliveryFeeCents   int64  `db:"delivery_fee_cents"`
	PickupFeeCents     int64  `db:"pickup_fee_cents"`
	RelocationFeeCents int64  `db:"relocation_fee_cents"`
}

// Rate is the configured monthly and first-month price for a
// (container size, storage location) pair. All money is integer cents.
type Rate struct {
	ContainerSize   string `db:"container_size"`
	Location        string `db:"location"`
	MonthlyCents    int64  `db:"monthly_cents"`
	FirstMonthCents int64  `db:"first_month_cents"`
}

// Promotion scope and amount configuration. Percent and flat discounts are
// mutually exclusive per promotion; scopes accumulate additively.
type Promotion struct {
	ID              string     `db:"id"`
	Code            string     `db:"code"`
	AppliesMonthly  bool       `db:"applies_monthly"`
	AppliesDelivery bool       `db:"applies_delivery"`
	PercentOff      int        `db:"percent_off"`
	FlatOffCents    int64      `db:"flat_off_cents"`
	Active          bool       `db:"active"`
	StartsAt        *time.Time `db:"starts_at"`
	EndsAt          *time.Time `db:"ends_at"`
}

// CurrentlyActive reports whether the promotion applies at the given time.
func (p *Promotion) CurrentlyActive(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

// ItemPricing is the priced view of one container.
type ItemPricing struct {
	ContainerSize   string `json:"container_size"`
	Location        string `json:"location"`
	MonthlyCents    int64  `json:"monthly_cents"`
	FirstMonthCents int64  `json:"first_month_cents"`
}

// PricingResult is the ephemeral outcome of a pricing computation. It is
// recomputed on every quote creation and price-sensitive mutation, never
// cached or persisted as-is.
type PricingResult struct {
	Items                []ItemPricing `json:"items"`
	ContainerCount       int           `json:"container_count"`
	DeliveryFeeCents     int64         `json:"delivery_fee_cents"`
	SubtotalMonthlyCents int64         `json:"subtotal_monthly_cents"`
	MultiDiscountPercent int           `json:"multi_discount_percent"`
	MultiDiscountCents   int64         `json:"multi_discount_cents"`
	PromoDiscountCents   int64         `json:"promo_discount_cents"`
	TotalMonthlyCents    int64         `json:"total_monthly_cents"`
	FirstMonthTotalCents int64         `json:"first_month_total_cents"`
	DueTodayCents        int64         `json:"due_today_cents"`
}

// Quote is a persisted quote row. PublicID is the human-shareable code and
// is immutable once issued; QuoteNumber is the sequential staff-facing
// number drawn from the atomic counter.
type Quote struct {
	ID                   uuid.UUID `db:"id"`
	PublicID             string    `db:"public_id"`
	QuoteNumber          int64     `db:"quote_number"`
	Zip                  string    `db:"zip"`
	ItemsRaw             []byte    `db:"items"`
	PromoID              *string   `db:"promo_id"`
	OverrideMonthlyCents *int64    `db:"override_monthly_cents"`
	OverrideReason       *string   `db:"override_reason"`
	TotalMonthlyCents    int64     `db:"total_monthly_cents"`
	FirstMonthTotalCents int64     `db:"first_month_total_cents"`
	DueTodayCents        int64     `db:"due_today_cents"`
	CreatedBy            int64     `db:"created_by"`
	CreatedAt            time.Time `db:"created_at"`
}

// ExpiredFor reports whether the quote is past its customer-facing validity.
func (q *Quote) ExpiredFor(now time.Time) bool {
	return now.Sub(q.CreatedAt) > PublicIDValidity
}
