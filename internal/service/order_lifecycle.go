package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/orders"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/google/uuid"
)

// GetOrder returns the order if it belongs to shopperID. Orders of other
// shoppers are reported as missing.
func (s *CheckoutServiceImpl) GetOrder(ctx context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return nil, domain.NotFoundf("order %s", orderID)
	}
	if err != nil {
		return nil, &domain.StorageError{Stage: "order lookup", Err: err}
	}
	if shopperID != "" && order.ShopperID != shopperID {
		return nil, domain.NotFoundf("order %s", orderID)
	}
	return order, nil
}

func (s *CheckoutServiceImpl) ListOrders(ctx context.Context, shopperID string) ([]*domain.Order, error) {
	if shopperID == "" {
		return nil, domain.BadRequestf("shopper id is required")
	}
	list, err := s.orders.ListOrdersByShopper(ctx, shopperID)
	if err != nil {
		return nil, &domain.StorageError{Stage: "order list", Err: err}
	}
	return list, nil
}

func (s *CheckoutServiceImpl) ConfirmOrder(ctx context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, shopperID, domain.OrderStatusConfirmed)
}

// CancelOrder cancels a pending order and gives its stock back.
func (s *CheckoutServiceImpl) CancelOrder(ctx context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, shopperID, domain.OrderStatusCancelled)
}

// ExpireOrder is the sweeper's variant of CancelOrder and is not scoped to a
// shopper.
func (s *CheckoutServiceImpl) ExpireOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, orderID, "", domain.OrderStatusExpired)
}

func (s *CheckoutServiceImpl) transition(ctx context.Context, orderID uuid.UUID, shopperID string, to domain.OrderStatus) (*domain.Order, error) {
	current, err := s.GetOrder(ctx, orderID, shopperID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, domain.BadRequestf("order %s is %s and cannot become %s", orderID, current.Status, to)
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, current.Status, to)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return nil, domain.NotFoundf("order %s", orderID)
	case errors.Is(err, orders.ErrStatusConflict):
		return nil, domain.BadRequestf("order %s changed status concurrently", orderID)
	case err != nil:
		return nil, &domain.StorageError{Stage: "order status update", CartID: current.CartID, Err: err}
	}

	s.logger.InfoContext(ctx, "order status changed",
		"order_id", orderID.String(),
		"from", current.Status.String(),
		"to", to.String())

	if to.ReleasesStock() {
		s.releaseOrderStock(ctx, updated)
	}
	if to == domain.OrderStatusConfirmed {
		s.commitOrderStock(ctx, updated)
		s.recordDiscountUse(ctx, updated)
	}
	return updated, nil
}

// recordDiscountUse counts each applied code once. A failure is logged and
// leaves the counters short; the order stays confirmed.
func (s *CheckoutServiceImpl) recordDiscountUse(ctx context.Context, order *domain.Order) {
	cctx, cancel := s.detached(ctx)
	defer cancel()

	for _, shop := range order.Shops {
		if shop.DiscountCode == "" {
			continue
		}
		if err := s.discounts.RecordUse(cctx, shop.DiscountCode, shop.ShopID, order.ShopperID); err != nil {
			s.logger.ErrorContext(cctx, "failed to record discount use",
				"order_id", order.ID.String(),
				"shop_id", shop.ShopID,
				"discount_code", shop.DiscountCode,
				"error", err)
		}
	}
}

// commitOrderStock takes the order's reservations out of the orphan sweep.
// A failure is logged; the sweep commits them when it next sees them.
func (s *CheckoutServiceImpl) commitOrderStock(ctx context.Context, order *domain.Order) {
	cctx, cancel := s.detached(ctx)
	defer cancel()

	if err := s.stock.CommitReservations(cctx, order.ID.String()); err != nil {
		s.logger.ErrorContext(cctx, "failed to commit order stock",
			"stage", "commit reservations",
			"order_id", order.ID.String(),
			"cart_id", order.CartID,
			"error", err)
	}
}

// releaseOrderStock gives back every reservation of the order. Failures are
// logged and left for the orphan sweep, which releases reservations of
// cancelled and expired orders.
func (s *CheckoutServiceImpl) releaseOrderStock(ctx context.Context, order *domain.Order) {
	cctx, cancel := s.detached(ctx)
	defer cancel()

	ref := order.ID.String()
	for _, line := range order.StockLines() {
		err := s.stock.Release(cctx, line.ProductID, ref, line.Quantity)
		if err != nil && !errors.Is(err, repository.ErrReservationNotFound) {
			s.logger.ErrorContext(cctx, "failed to release order stock",
				"stage", "release order",
				"order_id", ref,
				"cart_id", order.CartID,
				"product_id", line.ProductID,
				"error", err)
		}
	}
}

// ExpireStaleOrders expires up to limit pending orders created before cutoff.
func (s *CheckoutServiceImpl) ExpireStaleOrders(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.orders.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, &domain.StorageError{Stage: "list pending orders", Err: err}
	}

	expired := 0
	for _, order := range stale {
		if _, err := s.ExpireOrder(ctx, order.ID); err != nil {
			// confirmed or cancelled since it was listed
			if errors.Is(err, domain.ErrBadRequest) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// ReleaseOrphanReservations gives back reservations created before cutoff
// whose order was never stored or no longer holds stock. It walks every
// uncommitted reservation in pages of limit. Reservations of confirmed
// orders found on the way are committed so later sweeps skip them.
func (s *CheckoutServiceImpl) ReleaseOrphanReservations(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit < 1 {
		return 0, domain.BadRequestf("page size must be positive, got %d", limit)
	}

	released := 0
	var after *domain.Reservation
	for {
		page, err := s.stock.ListReservationsBefore(ctx, cutoff, after, limit)
		if err != nil {
			return released, &domain.StorageError{Stage: "list reservations", Err: err}
		}

		for _, res := range page {
			n, err := s.settleReservation(ctx, res)
			if err != nil {
				return released, err
			}
			released += n
		}

		if len(page) < limit {
			return released, nil
		}
		last := page[len(page)-1]
		after = &last
	}
}

func (s *CheckoutServiceImpl) settleReservation(ctx context.Context, res domain.Reservation) (int, error) {
	status, err := s.reservationOrderStatus(ctx, res)
	if err != nil {
		return 0, err
	}

	switch {
	case status == domain.OrderStatusConfirmed:
		if err := s.stock.CommitReservations(ctx, res.OrderRef); err != nil {
			return 0, &domain.StorageError{Stage: "commit reservations", CartID: res.CartID, ProductID: res.ProductID, Err: err}
		}
		return 0, nil
	case status != "" && !status.ReleasesStock():
		return 0, nil
	}

	err = s.stock.Release(ctx, res.ProductID, res.OrderRef, res.Quantity)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, &domain.StorageError{Stage: "release orphan", CartID: res.CartID, ProductID: res.ProductID, Err: err}
	}

	s.logger.InfoContext(ctx, "released orphan reservation",
		"order_id", res.OrderRef,
		"cart_id", res.CartID,
		"product_id", res.ProductID,
		"quantity", res.Quantity)
	return 1, nil
}

// reservationOrderStatus returns the status of the reservation's order, or ""
// when the order does not exist.
func (s *CheckoutServiceImpl) reservationOrderStatus(ctx context.Context, res domain.Reservation) (domain.OrderStatus, error) {
	orderID, err := uuid.Parse(res.OrderRef)
	if err != nil {
		return "", nil
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return "", nil
	}
	if err != nil {
		return "", &domain.StorageError{Stage: "order lookup", CartID: res.CartID, ProductID: res.ProductID, Err: err}
	}
	return order.Status, nil
}
