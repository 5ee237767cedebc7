package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
)

var (
	ErrCartNotFound        = errors.New("cart not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrDiscountNotFound    = errors.New("discount not found")
)

// ProductRepository is the catalog and the authoritative stock ledger.
type ProductRepository interface {
	// FindProduct returns price and name without the reservation trail.
	FindProduct(ctx context.Context, productID int64) (*domain.Product, error)

	// Reserve decrements stock by quantity only if enough is left and
	// appends a reservation record in the same atomic update.
	Reserve(ctx context.Context, productID int64, quantity int, orderRef, cartID string) (*domain.Reservation, error)

	// Release gives the stock of one reservation back and removes it.
	// Returns ErrReservationNotFound when it was already released.
	Release(ctx context.Context, productID int64, orderRef string, quantity int) error

	// CommitReservations marks every reservation of orderRef as committed.
	CommitReservations(ctx context.Context, orderRef string) error

	// ListReservationsBefore returns uncommitted reservations created before
	// cutoff, ordered by (created_at, order_ref, product_id). A non-nil after
	// resumes strictly past that reservation.
	ListReservationsBefore(ctx context.Context, cutoff time.Time, after *domain.Reservation, limit int) ([]domain.Reservation, error)

	SaveProduct(ctx context.Context, product *domain.Product) error
}

type CartRepository interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, cartID, shopperID string) error
}

type DiscountRepository interface {
	FindDiscount(ctx context.Context, code, shopID string) (*domain.Discount, error)
	SaveDiscount(ctx context.Context, discount *domain.Discount) error
	// RecordUse counts one redemption of the code by shopperID.
	RecordUse(ctx context.Context, code, shopID, shopperID string) error
}
