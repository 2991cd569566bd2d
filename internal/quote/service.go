package quote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrQuoteNotFound     = errors.New("quote not found")
	ErrBadZip            = errors.New("malformed zip code")
	ErrOverrideNeedsNote = errors.New("price override requires a reason")
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// QuoteStore is the slice of the quote repository the service needs.
type QuoteStore interface {
	PublicIDExists(ctx context.Context, publicID string) (bool, error)
	NextQuoteNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, q *Quote) error
	GetByPublicID(ctx context.Context, publicID string) (*Quote, error)
}

// AuditSink records quote events; implementations must not fail the request.
type AuditSink interface {
	Record(ctx context.Context, actor, action, detail string)
}

// CreateInput is a quote creation request from a staff route handler.
type CreateInput struct {
	Zip                  string `json:"zip"`
	Items                []Item `json:"items"`
	PromoID              string `json:"promo_id"`
	OverrideMonthlyCents int64  `json:"override_monthly_cents"`
	OverrideReason       string `json:"override_reason"`
	CreatedBy            int64  `json:"-"`
}

// CreatedQuote pairs the stored row with the pricing breakdown that
// produced it.
type CreatedQuote struct {
	Quote   *Quote         `json:"quote"`
	Pricing *PricingResult `json:"pricing"`
}

// LookupView is the customer-facing read of a quote. The row never goes
// away, but after ten days lookups report it as expired.
type LookupView struct {
	PublicID      string    `json:"public_id"`
	QuoteNumber   int64     `json:"quote_number"`
	Zip           string    `json:"zip"`
	Items         []Item    `json:"items"`
	TotalMonthly  int64     `json:"total_monthly_cents"`
	FirstMonth    int64     `json:"first_month_total_cents"`
	DueTodayCents int64     `json:"due_today_cents"`
	CreatedAt     time.Time `json:"created_at"`
	Expired       bool      `json:"expired"`
}

// Service orchestrates quote creation: fresh pricing, a collision-checked
// public id and an atomically incremented quote number, all within the
// request that persists the row.
type Service struct {
	repo    QuoteStore
	pricing *PricingEngine
	audit   AuditSink
	logger  *zap.SugaredLogger
}

func NewService(repo QuoteStore, pricing *PricingEngine, audit AuditSink, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: repo, pricing: pricing, audit: audit, logger: logger}
}

// Create prices and persists a new quote.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreatedQuote, error) {
	if !zipPattern.MatchString(in.Zip) {
		return nil, fmt.Errorf("%w: %q", ErrBadZip, in.Zip)
	}
	if in.OverrideMonthlyCents > 0 && in.OverrideReason == "" {
		return nil, ErrOverrideNeedsNote
	}

	pricing, err := s.pricing.Calculate(ctx, in.Zip, in.Items, in.PromoID, in.OverrideMonthlyCents)
	if err != nil {
		return nil, err
	}

	publicID, err := GeneratePublicID(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	number, err := s.repo.NextQuoteNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("next quote number: %w", err)
	}

	itemsRaw, err := json.Marshal(in.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	q := &Quote{
		ID:                   uuid.New(),
		PublicID:             publicID,
		QuoteNumber:          number,
		Zip:                  in.Zip,
		ItemsRaw:             itemsRaw,
		TotalMonthlyCents:    pricing.TotalMonthlyCents,
		FirstMonthTotalCents: pricing.FirstMonthTotalCents,
		DueTodayCents:        pricing.DueTodayCents,
		CreatedBy:            in.CreatedBy,
		CreatedAt:            time.Now(),
	}
	if in.PromoID != "" {
		q.PromoID = &in.PromoID
	}
	if in.OverrideMonthlyCents > 0 {
		q.OverrideMonthlyCents = &in.OverrideMonthlyCents
		q.OverrideReason = &in.OverrideReason
	}

	if err := s.repo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("persist quote: %w", err)
	}
	if s.audit != nil {
		s.audit.Record(ctx, fmt.Sprintf("user:%d", in.CreatedBy), "quote.created", publicID)
	}
	return &CreatedQuote{Quote: q, Pricing: pricing}, nil
}

// Lookup returns the customer-facing view of a quote by public id.
func (s *Service) Lookup(ctx context.Context, publicID string) (*LookupView, error) {
	q, err := s.repo.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("load quote: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(q.ItemsRaw, &items); err != nil {
		s.logger.Warnw("stored quote items unreadable", "public_id", publicID, "err", err)
	}
	return &LookupView{
		PublicID:      q.PublicID,
		QuoteNumber:   q.QuoteNumber,
		Zip:           q.Zip,
		Items:         items,
		TotalMonthly:  q.TotalMonthlyCents,
		FirstMonth:    q.FirstMonthTotalCents,
		DueTodayCents: q.DueTodayCents,
		CreatedAt:     q.CreatedAt,
		Expired:       q.ExpiredFor(time.Now()),
	}, nil
}
