package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/fjod/go_cart/checkout-pipeline/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// --- Mocks ---

type MockCheckoutService struct {
	mu sync.Mutex

	summary *domain.CheckoutSummary
	order   *domain.Order
	orders  []*domain.Order
	err     error

	lastReview *service.ReviewRequest
	lastPlace  *service.PlaceOrderRequest
	lastID     uuid.UUID
	lastUser   string
}

func (m *MockCheckoutService) CheckoutReview(_ context.Context, request *service.ReviewRequest) (*domain.CheckoutSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReview = request
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func (m *MockCheckoutService) PlaceOrder(_ context.Context, request *service.PlaceOrderRequest) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPlace = request
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *MockCheckoutService) GetOrder(_ context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error) {
	return m.orderCall(orderID, shopperID)
}

func (m *MockCheckoutService) ListOrders(_ context.Context, shopperID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUser = shopperID
	if m.err != nil {
		return nil, m.err
	}
	return m.orders, nil
}

func (m *MockCheckoutService) ConfirmOrder(_ context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error) {
	return m.orderCall(orderID, shopperID)
}

func (m *MockCheckoutService) CancelOrder(_ context.Context, orderID uuid.UUID, shopperID string) (*domain.Order, error) {
	return m.orderCall(orderID, shopperID)
}

func (m *MockCheckoutService) orderCall(orderID uuid.UUID, shopperID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID = orderID
	m.lastUser = shopperID
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

type MockCartLoader struct {
	carts map[string]*domain.Cart
	err   error
}

func (m *MockCartLoader) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return cart, nil
}

type MockRecorder struct {
	mu     sync.Mutex
	served map[string][]int
}

func (m *MockRecorder) RequestServed(handler string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.served == nil {
		m.served = make(map[string][]int)
	}
	m.served[handler] = append(m.served[handler], status)
}

// --- helpers ---

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(withUserID(r.Context(), userID))
}

func withOrderID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("order_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
