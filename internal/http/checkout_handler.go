package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/fjod/go_cart/checkout-pipeline/internal/service"
)

// CartLoader reads stored carts for requests that name a cart without
// sending its contents.
type CartLoader interface {
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
}

type CheckoutHandler struct {
	checkout service.CheckoutService
	carts    CartLoader
	timeout  time.Duration
}

func NewCheckoutHandler(checkout service.CheckoutService, carts CartLoader, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		carts:    carts,
		timeout:  timeout,
	}
}

type ReviewRequestDTO struct {
	CartID     string             `json:"cart_id"`
	ShopGroups []domain.ShopGroup `json:"shop_groups,omitempty"`
}

type PlaceOrderRequestDTO struct {
	CartID     string              `json:"cart_id"`
	ShopGroups []domain.ShopGroup  `json:"shop_groups,omitempty"`
	Shipping   domain.ShippingInfo `json:"shipping"`
	Payment    domain.PaymentInfo  `json:"payment"`
}

// POST /api/v1/checkout/review
func (h *CheckoutHandler) Review(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ReviewRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	groups, err := h.shopGroups(ctx, req.CartID, userID, req.ShopGroups)
	if err != nil {
		handleError(w, r, err)
		return
	}

	summary, err := h.checkout.CheckoutReview(ctx, &service.ReviewRequest{
		CartID:     req.CartID,
		ShopperID:  userID,
		ShopGroups: groups,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// POST /api/v1/checkout/orders
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	groups, err := h.shopGroups(ctx, req.CartID, userID, req.ShopGroups)
	if err != nil {
		handleError(w, r, err)
		return
	}

	order, err := h.checkout.PlaceOrder(ctx, &service.PlaceOrderRequest{
		CartID:     req.CartID,
		ShopperID:  userID,
		ShopGroups: groups,
		Shipping:   req.Shipping,
		Payment:    req.Payment,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// shopGroups returns the inline groups when present, otherwise the stored
// cart's. A cart id owned by someone else is reported as missing either way,
// since the placed order later clears the cart it names.
func (h *CheckoutHandler) shopGroups(ctx context.Context, cartID, userID string, inline []domain.ShopGroup) ([]domain.ShopGroup, error) {
	if cartID == "" {
		if len(inline) > 0 {
			return inline, nil
		}
		return nil, domain.BadRequestf("cart_id is required")
	}

	cart, err := h.carts.GetCart(ctx, cartID)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		if len(inline) > 0 {
			return inline, nil
		}
		return nil, domain.NotFoundf("cart %s", cartID)
	case err != nil:
		return nil, &domain.StorageError{Stage: "load cart", CartID: cartID, Err: err}
	case cart.ShopperID != userID:
		return nil, domain.NotFoundf("cart %s", cartID)
	}

	if len(inline) > 0 {
		return inline, nil
	}
	return cart.ShopGroups, nil
}
