package service

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/checkout-pipeline/internal/lock"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
)

// detached keeps request values but survives the caller's cancellation, so
// cleanup still runs after a deadline has fired.
func (s *CheckoutServiceImpl) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UnwindTimeout)
}

// unwind gives back every reservation of the attempt and releases its locks,
// newest first. Faults are logged; the caller's outcome is already decided.
func (s *CheckoutServiceImpl) unwind(ctx context.Context, att *attempt, cause error) {
	if len(att.held) == 0 {
		return
	}
	s.metrics.Unwound()

	cctx, cancel := s.detached(ctx)
	defer cancel()

	s.logger.WarnContext(cctx, "unwinding checkout attempt",
		"order_id", att.ref(),
		"cart_id", att.cartID,
		"held", len(att.held),
		"cause", cause)

	for i := len(att.held) - 1; i >= 0; i-- {
		h := att.held[i]
		if h.reserved {
			err := s.stock.Release(cctx, h.line.ProductID, att.ref(), h.line.Quantity)
			if err != nil && !errors.Is(err, repository.ErrReservationNotFound) {
				s.logger.ErrorContext(cctx, "failed to release reservation",
					"stage", "unwind",
					"order_id", att.ref(),
					"cart_id", att.cartID,
					"product_id", h.line.ProductID,
					"quantity", h.line.Quantity,
					"error", err)
			}
		}
		s.releaseLock(cctx, att, h)
	}
}

func (s *CheckoutServiceImpl) releaseLocks(ctx context.Context, att *attempt) {
	cctx, cancel := s.detached(ctx)
	defer cancel()

	for i := len(att.held) - 1; i >= 0; i-- {
		s.releaseLock(cctx, att, att.held[i])
	}
}

func (s *CheckoutServiceImpl) releaseLock(ctx context.Context, att *attempt, h *heldLine) {
	err := s.locker.Release(ctx, h.lock)
	switch {
	case err == nil:
	case errors.Is(err, lock.ErrLockNotHeld):
		s.logger.WarnContext(ctx, "lock expired before release",
			"order_id", att.ref(),
			"product_id", h.line.ProductID,
			"key", h.lock.Key)
	default:
		s.logger.ErrorContext(ctx, "failed to release lock",
			"stage", "release lock",
			"order_id", att.ref(),
			"cart_id", att.cartID,
			"product_id", h.line.ProductID,
			"error", err)
	}
}
