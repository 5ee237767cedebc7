package discount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

var hundred = decimal.NewFromInt(100)

type Option func(*Service)

// WithClock replaces the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithBreakerSettings replaces the circuit breaker configuration.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(s *Service) {
		s.settings = st
	}
}

// Service computes the discount amount of a shop-scoped code.
type Service struct {
	repo     repository.DiscountRepository
	breaker  *gobreaker.CircuitBreaker[decimal.Decimal]
	settings gobreaker.Settings
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(repo repository.DiscountRepository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		now:    time.Now,
		logger: logger,
		settings: gobreaker.Settings{
			Name:        "discount",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.settings.IsSuccessful = isSuccessful
	s.settings.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}
	s.breaker = gobreaker.NewCircuitBreaker[decimal.Decimal](s.settings)
	return s
}

// Rejected codes are business outcomes and do not count against the breaker.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrBadRequest)
}

// GetDiscountAmount validates code for the shop and shopper and returns the
// amount it takes off the given products. Unknown codes are ErrNotFound,
// unusable ones ErrBadRequest.
func (s *Service) GetDiscountAmount(ctx context.Context, code, shopID, shopperID string, products []domain.ResolvedItem) (decimal.Decimal, error) {
	amount, err := s.breaker.Execute(func() (decimal.Decimal, error) {
		return s.calculate(ctx, code, shopID, shopperID, products)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return decimal.Zero, &domain.UnavailableError{Err: fmt.Errorf("discount lookup: %w", err)}
	}
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// RecordUse counts a redemption of code once the order using it is
// confirmed. It feeds the MaxUses and MaxUsesPerShopper checks.
func (s *Service) RecordUse(ctx context.Context, code, shopID, shopperID string) error {
	err := s.repo.RecordUse(ctx, code, shopID, shopperID)
	if errors.Is(err, repository.ErrDiscountNotFound) {
		return domain.NotFoundf("discount code %q for shop %s", code, shopID)
	}
	if err != nil {
		return &domain.StorageError{Stage: "record discount use", Err: err}
	}
	return nil
}

func (s *Service) calculate(ctx context.Context, code, shopID, shopperID string, products []domain.ResolvedItem) (decimal.Decimal, error) {
	d, err := s.repo.FindDiscount(ctx, code, shopID)
	if errors.Is(err, repository.ErrDiscountNotFound) {
		return decimal.Zero, domain.NotFoundf("discount code %q for shop %s", code, shopID)
	}
	if err != nil {
		return decimal.Zero, &domain.StorageError{Stage: "discount lookup", Err: err}
	}

	if err := s.validate(d, shopperID); err != nil {
		return decimal.Zero, err
	}

	eligible := eligibleTotal(d, products)
	if !eligible.IsPositive() {
		return decimal.Zero, domain.BadRequestf("discount code %q applies to none of the products", code)
	}
	if d.MinOrderValue.IsPositive() && eligible.LessThan(d.MinOrderValue) {
		return decimal.Zero, domain.BadRequestf("discount code %q requires an order of at least %s", code, d.MinOrderValue.StringFixed(2))
	}

	switch d.Type {
	case domain.DiscountFixedAmount:
		return d.Value, nil
	case domain.DiscountPercentage:
		return eligible.Mul(d.Value).Div(hundred).Round(2), nil
	default:
		return decimal.Zero, domain.BadRequestf("discount code %q has unknown type %q", code, d.Type)
	}
}

func (s *Service) validate(d *domain.Discount, shopperID string) error {
	now := s.now()

	if !d.Active {
		return domain.BadRequestf("discount code %q is not active", d.Code)
	}
	if !d.StartsAt.IsZero() && now.Before(d.StartsAt) {
		return domain.BadRequestf("discount code %q has not started", d.Code)
	}
	if !d.EndsAt.IsZero() && now.After(d.EndsAt) {
		return domain.BadRequestf("discount code %q has expired", d.Code)
	}
	if d.MaxUses > 0 && d.UsesCount >= d.MaxUses {
		return domain.BadRequestf("discount code %q is exhausted", d.Code)
	}
	if d.MaxUsesPerShopper > 0 {
		used := 0
		for _, id := range d.UsedBy {
			if id == shopperID {
				used++
			}
		}
		if used >= d.MaxUsesPerShopper {
			return domain.BadRequestf("discount code %q already used by shopper", d.Code)
		}
	}
	return nil
}

func eligibleTotal(d *domain.Discount, products []domain.ResolvedItem) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		if len(d.ProductIDs) > 0 && !slices.Contains(d.ProductIDs, p.ProductID) {
			continue
		}
		total = total.Add(p.Subtotal)
	}
	return total
}
