package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/lock"
	"github.com/google/uuid"
)

type Reviewer interface {
	Review(ctx context.Context, cartID, shopperID string, groups []domain.ShopGroup) (*domain.CheckoutSummary, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (*lock.Lock, bool, error)
	Release(ctx context.Context, lk *lock.Lock) error
}

// StockStore is the authoritative stock ledger.
type StockStore interface {
	Reserve(ctx context.Context, productID int64, quantity int, orderRef, cartID string) (*domain.Reservation, error)
	Release(ctx context.Context, productID int64, orderRef string, quantity int) error
	CommitReservations(ctx context.Context, orderRef string) error
	ListReservationsBefore(ctx context.Context, cutoff time.Time, after *domain.Reservation, limit int) ([]domain.Reservation, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByShopper(ctx context.Context, shopperID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (*domain.Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error)
}

// DiscountUsage records redemptions of applied discount codes.
type DiscountUsage interface {
	RecordUse(ctx context.Context, code, shopID, shopperID string) error
}

type noopDiscountUsage struct{}

func (noopDiscountUsage) RecordUse(context.Context, string, string, string) error { return nil }

// Metrics receives pipeline outcomes. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	PlaceOrderObserved(outcome string, elapsed time.Duration)
	LockAttempt(result string)
	Unwound()
}

type noopMetrics struct{}

func (noopMetrics) PlaceOrderObserved(string, time.Duration) {}
func (noopMetrics) LockAttempt(string)                       {}
func (noopMetrics) Unwound()                                 {}

type CheckoutService interface {
	CheckoutReview(ctx context.Context, request *ReviewRequest) (*domain.CheckoutSummary, error)
	PlaceOrder(ctx context.Context, request *PlaceOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error)
	ListOrders(ctx context.Context, shopperID string) ([]*domain.Order, error)
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error)
}

type ReviewRequest struct {
	CartID     string
	ShopperID  string
	ShopGroups []domain.ShopGroup
}

type PlaceOrderRequest struct {
	CartID     string
	ShopperID  string
	ShopGroups []domain.ShopGroup
	Shipping   domain.ShippingInfo
	Payment    domain.PaymentInfo
}

type Config struct {
	LockTTL        time.Duration
	LockMaxRetries int
	LockRetryDelay time.Duration
	// PlaceOrderTimeout bounds a whole PlaceOrder call. Zero leaves only
	// the caller's deadline.
	PlaceOrderTimeout time.Duration
	UnwindTimeout     time.Duration
	Currency          string
}

func DefaultConfig() Config {
	return Config{
		LockTTL:           5 * time.Second,
		LockMaxRetries:    3,
		LockRetryDelay:    100 * time.Millisecond,
		PlaceOrderTimeout: 10 * time.Second,
		UnwindTimeout:     5 * time.Second,
		Currency:          "USD",
	}
}

type Option func(*CheckoutServiceImpl)

func WithClock(now func() time.Time) Option {
	return func(s *CheckoutServiceImpl) {
		s.now = now
	}
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *CheckoutServiceImpl) {
		s.newID = newID
	}
}

// WithDiscountUsage records discount redemptions when orders are confirmed.
func WithDiscountUsage(u DiscountUsage) Option {
	return func(s *CheckoutServiceImpl) {
		s.discounts = u
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *CheckoutServiceImpl) {
		s.metrics = m
	}
}

type CheckoutServiceImpl struct {
	reviewer  Reviewer
	locker    Locker
	stock     StockStore
	orders    OrderStore
	cfg       Config
	logger    *slog.Logger
	metrics   Metrics
	discounts DiscountUsage
	now       func() time.Time
	newID     func() uuid.UUID
}

func NewCheckoutService(
	reviewer Reviewer,
	locker Locker,
	stock StockStore,
	orders OrderStore,
	cfg Config,
	logger *slog.Logger,
	opts ...Option) *CheckoutServiceImpl {

	if cfg.UnwindTimeout <= 0 {
		cfg.UnwindTimeout = DefaultConfig().UnwindTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultConfig().Currency
	}

	s := &CheckoutServiceImpl{
		reviewer:  reviewer,
		locker:    locker,
		stock:     stock,
		orders:    orders,
		cfg:       cfg,
		logger:    logger,
		metrics:   noopMetrics{},
		discounts: noopDiscountUsage{},
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
