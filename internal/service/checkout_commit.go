package service

import (
	"context"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
)

func (s *CheckoutServiceImpl) buildOrder(att *attempt, summary *domain.CheckoutSummary, request *PlaceOrderRequest) *domain.Order {
	now := s.now().UTC()
	order := &domain.Order{
		ID:            att.orderID,
		CartID:        summary.CartID,
		ShopperID:     summary.ShopperID,
		Status:        domain.OrderStatusPending,
		Shipping:      request.Shipping,
		Payment:       request.Payment,
		Items:         make([]domain.OrderItem, 0),
		Shops:         make([]domain.OrderShop, 0, len(summary.Shops)),
		TotalRaw:      summary.TotalRaw,
		TotalDiscount: summary.TotalDiscount,
		TotalPayable:  summary.TotalPayable,
		Currency:      s.cfg.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, shop := range summary.Shops {
		order.Shops = append(order.Shops, domain.OrderShop{
			ShopID:       shop.ShopID,
			DiscountCode: shop.DiscountCode,
			RawPrice:     shop.RawPrice,
			Discount:     shop.Discount,
			FinalPrice:   shop.FinalPrice,
		})
		for _, item := range shop.Items {
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:   item.ProductID,
				ShopID:      shop.ShopID,
				ProductName: item.Name,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				Subtotal:    item.Subtotal,
			})
		}
	}
	return order
}

// commit persists the order while every lock is still held. When the store
// fails the reservations stay in place for reconciliation.
func (s *CheckoutServiceImpl) commit(ctx context.Context, att *attempt, order *domain.Order) error {
	err := s.orders.CreateOrder(ctx, order)
	s.releaseLocks(ctx, att)
	if err != nil {
		s.logger.ErrorContext(ctx, "order not persisted after reservation",
			"stage", "commit",
			"order_id", att.ref(),
			"cart_id", att.cartID,
			"reservations", len(att.held),
			"error", err)
		return &domain.ReservedButOrderFailedError{
			OrderID:      att.ref(),
			CartID:       att.cartID,
			Reservations: att.reservations(),
			Err:          err,
		}
	}

	s.logger.InfoContext(ctx, "order placed",
		"order_id", att.ref(),
		"cart_id", att.cartID,
		"shopper_id", order.ShopperID,
		"total_payable", order.TotalPayable.StringFixed(2))
	return nil
}
