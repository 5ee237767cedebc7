package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
)

func (s *CheckoutServiceImpl) CheckoutReview(ctx context.Context, request *ReviewRequest) (*domain.CheckoutSummary, error) {
	return s.reviewer.Review(ctx, request.CartID, request.ShopperID, request.ShopGroups)
}

// PlaceOrder reviews the cart, locks and reserves every product in ascending
// id order and persists a pending order. Any failure before the order is
// stored gives back all stock taken by this call.
func (s *CheckoutServiceImpl) PlaceOrder(ctx context.Context, request *PlaceOrderRequest) (*domain.Order, error) {
	start := time.Now()
	order, err := s.placeOrder(ctx, request)
	s.metrics.PlaceOrderObserved(outcomeOf(err), time.Since(start))
	return order, err
}

func (s *CheckoutServiceImpl) placeOrder(ctx context.Context, request *PlaceOrderRequest) (*domain.Order, error) {
	if err := validateDelivery(request.Shipping, request.Payment); err != nil {
		return nil, err
	}

	if s.cfg.PlaceOrderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PlaceOrderTimeout)
		defer cancel()
	}

	summary, err := s.reviewer.Review(ctx, request.CartID, request.ShopperID, request.ShopGroups)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, domain.ErrBadRequest) && !errors.Is(err, domain.ErrNotFound) {
			return nil, interrupted("review", ctxErr)
		}
		return nil, err
	}

	att := &attempt{
		orderID: s.newID(),
		cartID:  request.CartID,
	}

	if err := s.reserveInventory(ctx, att, summary.StockLines()); err != nil {
		s.unwind(ctx, att, err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		s.unwind(ctx, att, err)
		return nil, interrupted("reserve", err)
	}

	order := s.buildOrder(att, summary, request)
	if err := s.commit(ctx, att, order); err != nil {
		return nil, err
	}
	return order, nil
}

func validateDelivery(shipping domain.ShippingInfo, payment domain.PaymentInfo) error {
	switch {
	case shipping.Recipient == "":
		return domain.BadRequestf("shipping recipient is required")
	case shipping.Street == "":
		return domain.BadRequestf("shipping street is required")
	case shipping.City == "":
		return domain.BadRequestf("shipping city is required")
	case shipping.Country == "":
		return domain.BadRequestf("shipping country is required")
	case payment.Method == "":
		return domain.BadRequestf("payment method is required")
	}
	return nil
}
