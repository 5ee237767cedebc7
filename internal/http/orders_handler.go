package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrdersHandler struct {
	orders  service.CheckoutService
	timeout time.Duration
}

func NewOrdersHandler(orders service.CheckoutService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListOrders(ctx, userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}

	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.orders.GetOrder)
}

// POST /api/v1/orders/{order_id}/confirm
func (h *OrdersHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.orders.ConfirmOrder)
}

// POST /api/v1/orders/{order_id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.withOrder(w, r, h.orders.CancelOrder)
}

type orderCall func(ctx context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error)

func (h *OrdersHandler) withOrder(w http.ResponseWriter, r *http.Request, call orderCall) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	order, err := call(ctx, orderID, userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}
