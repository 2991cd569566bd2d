package quote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sentinel errors surfaced to callers as descriptive 4xx conditions
var (
	ErrZipNotServed     = errors.New("zip code is outside all service zones")
	ErrNoRateConfigured = errors.New("no rate configured for container/location")
	ErrPromoNotActive   = errors.New("promotion is not currently active")
	ErrNoItems          = errors.New("quote has no items")
)

// PricingStore provides the configured zone, rate and promotion rows.
type PricingStore interface {
	ZoneForZip(ctx context.Context, zip string) (*Zone, error)
	Rate(ctx context.Context, containerSize, location string) (*Rate, error)
	Promotion(ctx context.Context, id string) (*Promotion, error)
}

// PricingEngine computes quote amounts from zone, rate and promotion data.
// Everything is integer cents; only presentation layers divide by 100.
type PricingEngine struct {
	store PricingStore
}

func NewPricingEngine(store PricingStore) *PricingEngine {
	return &PricingEngine{store: store}
}

// multiDiscountPercent is tiered purely by container count.
func multiDiscountPercent(count int) int {
	switch {
	case count >= 3:
		return 10
	case count == 2:
		return 5
	default:
		return 0
	}
}

// Calculate prices a set of containers for a ZIP. overrideMonthlyCents, when
// positive, replaces the computed per-container monthly rate before
// discounting; the human-readable reason for an override is enforced by the
// caller. A missing zone or rate is a hard error, never a silent zero.
func (e *PricingEngine) Calculate(ctx context.Context, zip string, items []Item, promoID string, overrideMonthlyCents int64) (*PricingResult, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	zone, err := e.store.ZoneForZip(ctx, zip)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrZipNotServed, zip)
		}
		return nil, fmt.Errorf("resolve zone: %w", err)
	}

	res := &PricingResult{
		ContainerCount:   len(items),
		DeliveryFeeCents: zone.DeliveryFeeCents,
	}

	var firstMonthSum int64
	for _, it := range items {
		rate, err := e.store.Rate(ctx, it.ContainerSize, it.Location)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s at %s", ErrNoRateConfigured, it.ContainerSize, it.Location)
			}
			return nil, fmt.Errorf("load rate: %w", err)
		}
		res.Items = append(res.Items, ItemPricing{
			ContainerSize:   it.ContainerSize,
			Location:        it.Location,
			MonthlyCents:    rate.MonthlyCents,
			FirstMonthCents: rate.FirstMonthCents,
		})
		res.SubtotalMonthlyCents += rate.MonthlyCents
		firstMonthSum += rate.FirstMonthCents
	}

	// Manual staff override replaces the computed per-container monthly rate
	// across the board before discounting.
	if overrideMonthlyCents > 0 {
		res.SubtotalMonthlyCents = overrideMonthlyCents * int64(res.ContainerCount)
	}

	// Multi-container discount applies only to the monthly subtotal, never
	// to first-month or delivery amounts.
	res.MultiDiscountPercent = multiDiscountPercent(res.ContainerCount)
	res.MultiDiscountCents = res.SubtotalMonthlyCents * int64(res.MultiDiscountPercent) / 100
	res.TotalMonthlyCents = res.SubtotalMonthlyCents - res.MultiDiscountCents

	if promoID != "" {
		promo, err := e.store.Promotion(ctx, promoID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrPromoNotActive, promoID)
			}
			return nil, fmt.Errorf("load promotion: %w", err)
		}
		if !promo.CurrentlyActive(time.Now()) {
			return nil, fmt.Errorf("%w: %s", ErrPromoNotActive, promoID)
		}
		res.PromoDiscountCents = promoDiscount(promo, res.TotalMonthlyCents, res.DeliveryFeeCents)
	}

	res.FirstMonthTotalCents = firstMonthSum + res.DeliveryFeeCents - res.PromoDiscountCents
	if res.FirstMonthTotalCents < 0 {
		res.FirstMonthTotalCents = 0
	}
	res.DueTodayCents = res.FirstMonthTotalCents
	return res, nil
}

// promoDiscount accumulates the discount across the promotion's scopes:
// percent-of-applicable-amount when PercentOff is set, flat cents otherwise.
func promoDiscount(p *Promotion, monthlyCents, deliveryCents int64) int64 {
	var total int64
	apply := func(base int64) {
		if p.PercentOff > 0 {
			total += base * int64(p.PercentOff) / 100
		} else {
			total += p.FlatOffCents
		}
	}
	if p.AppliesMonthly {
		apply(monthlyCents)
	}
	if p.AppliesDelivery {
		apply(deliveryCents)
	}
	return total
}
