package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/lock"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/google/uuid"
)

// attempt tracks what one PlaceOrder call holds, in acquisition order.
type attempt struct {
	orderID uuid.UUID
	cartID  string
	held    []*heldLine
}

type heldLine struct {
	line domain.StockLine
	lock *lock.Lock
	// reserved is also set when the outcome of Reserve is unknown; Release
	// is keyed on the order ref so giving back a missing reservation is a no-op.
	reserved bool
}

func (a *attempt) ref() string {
	return a.orderID.String()
}

func (a *attempt) reservations() []domain.StockLine {
	lines := make([]domain.StockLine, 0, len(a.held))
	for _, h := range a.held {
		if h.reserved {
			lines = append(lines, h.line)
		}
	}
	return lines
}

func (s *CheckoutServiceImpl) reserveInventory(ctx context.Context, att *attempt, lines []domain.StockLine) error {
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return interrupted("reserve", err)
		}

		lk, acquired, err := s.locker.Acquire(ctx, lock.ProductKey(line.ProductID),
			s.cfg.LockTTL, s.cfg.LockMaxRetries, s.cfg.LockRetryDelay)
		if err != nil {
			s.metrics.LockAttempt("error")
			if ctxErr := ctx.Err(); ctxErr != nil {
				return interrupted("acquire lock", ctxErr)
			}
			return &domain.StorageError{Stage: "acquire lock", CartID: att.cartID, ProductID: line.ProductID, Err: err}
		}
		if !acquired {
			s.metrics.LockAttempt("contended")
			return &domain.UnavailableError{
				ProductID:  line.ProductID,
				RetryAfter: s.retryAfter(),
				Err:        ErrLockContended,
			}
		}
		s.metrics.LockAttempt("acquired")

		held := &heldLine{line: line, lock: lk}
		att.held = append(att.held, held)

		_, err = s.stock.Reserve(ctx, line.ProductID, line.Quantity, att.ref(), att.cartID)
		switch {
		case err == nil:
			held.reserved = true
		case errors.Is(err, repository.ErrInsufficientStock):
			return &domain.OutOfStockError{ProductID: line.ProductID, Requested: line.Quantity}
		case errors.Is(err, repository.ErrProductNotFound):
			return domain.NotFoundf("product %d", line.ProductID)
		case ctx.Err() != nil:
			held.reserved = true
			return interrupted("reserve", ctx.Err())
		default:
			held.reserved = true
			s.logger.ErrorContext(ctx, "reserve failed",
				"stage", "reserve",
				"order_id", att.ref(),
				"cart_id", att.cartID,
				"product_id", line.ProductID,
				"error", err)
			return &domain.StorageError{Stage: "reserve", CartID: att.cartID, ProductID: line.ProductID, Err: err}
		}
	}
	return nil
}

func (s *CheckoutServiceImpl) retryAfter() time.Duration {
	retries := max(s.cfg.LockMaxRetries, 1)
	return s.cfg.LockRetryDelay * time.Duration(retries)
}
