package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/lock"
	"github.com/fjod/go_cart/checkout-pipeline/internal/logger"
	"github.com/fjod/go_cart/checkout-pipeline/internal/orders"
	"github.com/fjod/go_cart/checkout-pipeline/internal/pricing"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockStockStore is the catalog and stock ledger in memory. Reserve is a
// conditional decrement under the mutex, like the real findOneAndUpdate.
type MockStockStore struct {
	mu           sync.Mutex
	products     map[int64]*domain.Product
	reservations map[string]domain.Reservation
	reserveErr   map[int64]error
	// beforeReserve runs outside the mutex before each Reserve.
	beforeReserve func(ctx context.Context, productID int64) error
	releaseErr    error
	reserveCalls  int
	releaseCalls  int
	commitErr     error
	commitCalls   int
	listCalls     int
	now           time.Time
}

func NewMockStockStore() *MockStockStore {
	return &MockStockStore{
		products:     map[int64]*domain.Product{},
		reservations: map[string]domain.Reservation{},
		reserveErr:   map[int64]error{},
		now:          time.Now(),
	}
}

func reservationKey(productID int64, orderRef string) string {
	return fmt.Sprintf("%d/%s", productID, orderRef)
}

func (m *MockStockStore) AddProduct(id int64, shopID, price string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = &domain.Product{
		ID:     id,
		ShopID: shopID,
		Name:   fmt.Sprintf("product-%d", id),
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
	}
}

func (m *MockStockStore) Stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *MockStockStore) ReservationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reservations)
}

// AddReservation stores a reservation directly, with stock already taken.
func (m *MockStockStore) AddReservation(res domain.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[res.ProductID].Stock -= res.Quantity
	m.reservations[reservationKey(res.ProductID, res.OrderRef)] = res
}

func (m *MockStockStore) FindProduct(_ context.Context, productID int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockStockStore) Reserve(ctx context.Context, productID int64, quantity int, orderRef, cartID string) (*domain.Reservation, error) {
	if m.beforeReserve != nil {
		if err := m.beforeReserve(ctx, productID); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveCalls++
	if err := m.reserveErr[productID]; err != nil {
		return nil, err
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	if p.Stock < quantity {
		return nil, repository.ErrInsufficientStock
	}
	p.Stock -= quantity
	res := domain.Reservation{
		OrderRef:  orderRef,
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: m.now,
	}
	m.reservations[reservationKey(productID, orderRef)] = res
	return &res, nil
}

func (m *MockStockStore) Release(_ context.Context, productID int64, orderRef string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	if m.releaseErr != nil {
		return m.releaseErr
	}
	key := reservationKey(productID, orderRef)
	res, ok := m.reservations[key]
	if !ok || res.Quantity != quantity {
		return repository.ErrReservationNotFound
	}
	delete(m.reservations, key)
	m.products[productID].Stock += quantity
	return nil
}

func (m *MockStockStore) CommitReservations(_ context.Context, orderRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	if m.commitErr != nil {
		return m.commitErr
	}
	for key, res := range m.reservations {
		if res.OrderRef == orderRef {
			res.Committed = true
			m.reservations[key] = res
		}
	}
	return nil
}

// ListReservationsBefore mirrors the Mongo pipeline: uncommitted only, sorted
// by (created_at, order_ref, product_id), resumed past after, then limited.
func (m *MockStockStore) ListReservationsBefore(_ context.Context, cutoff time.Time, after *domain.Reservation, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []domain.Reservation
	for _, res := range m.reservations {
		if res.Committed || !res.CreatedAt.Before(cutoff) {
			continue
		}
		if after != nil && compareReservations(res, *after) <= 0 {
			continue
		}
		out = append(out, res)
	}
	slices.SortFunc(out, compareReservations)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func compareReservations(a, b domain.Reservation) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if c := strings.Compare(a.OrderRef, b.OrderRef); c != 0 {
		return c
	}
	return cmp.Compare(a.ProductID, b.ProductID)
}

func (m *MockStockStore) Committed(productID int64, orderRef string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[reservationKey(productID, orderRef)].Committed
}

// MockLocker keeps lock markers in a map and never sleeps for real unless
// sleep is set.
type MockLocker struct {
	mu          sync.Mutex
	held        map[string]string
	acquireErr  error
	attempts    int
	releases    int
	sleep       func(time.Duration)
	nextTokenID int
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = "someone-else"
}

func (m *MockLocker) HeldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

func (m *MockLocker) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *MockLocker) tryAcquire(key string) (*lock.Lock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if _, busy := m.held[key]; busy {
		return nil, false
	}
	m.nextTokenID++
	token := fmt.Sprintf("token-%d", m.nextTokenID)
	m.held[key] = token
	return &lock.Lock{Key: key, Token: token}, true
}

func (m *MockLocker) Acquire(ctx context.Context, key string, _ time.Duration, maxRetries int, retryDelay time.Duration) (*lock.Lock, bool, error) {
	if m.acquireErr != nil {
		return nil, false, m.acquireErr
	}
	attempts := max(maxRetries, 1)
	for i := 0; i < attempts; i++ {
		if lk, ok := m.tryAcquire(key); ok {
			return lk, true, nil
		}
		if i < attempts-1 {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			if m.sleep != nil {
				m.sleep(retryDelay)
			}
		}
	}
	return nil, false, nil
}

func (m *MockLocker) Release(_ context.Context, lk *lock.Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	if lk == nil || m.held[lk.Key] != lk.Token {
		return lock.ErrLockNotHeld
	}
	delete(m.held, lk.Key)
	return nil
}

type MockOrderStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*domain.Order
	createErr error
	created   int
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{orders: map[uuid.UUID]*domain.Order{}}
}

func (m *MockOrderStore) Put(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

func (m *MockOrderStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MockOrderStore) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	if m.createErr != nil {
		return m.createErr
	}
	if _, dup := m.orders[order.ID]; dup {
		return orders.ErrDuplicateOrder
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *MockOrderStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderStore) ListOrdersByShopper(_ context.Context, shopperID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.ShopperID == shopperID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockOrderStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	if o.Status != from {
		return nil, orders.ErrStatusConflict
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (m *MockOrderStore) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderStatusPending && o.CreatedAt.Before(cutoff) && len(out) < limit {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockDiscounts returns a fixed amount per shop/code pair and records
// redemptions as "shop/code/shopper".
type MockDiscounts struct {
	amounts map[string]decimal.Decimal

	mu     sync.Mutex
	uses   []string
	useErr error
}

func (m *MockDiscounts) GetDiscountAmount(_ context.Context, code, shopID, _ string, _ []domain.ResolvedItem) (decimal.Decimal, error) {
	amount, ok := m.amounts[shopID+"/"+code]
	if !ok {
		return decimal.Zero, domain.NotFoundf("discount code %q", code)
	}
	return amount, nil
}

func (m *MockDiscounts) RecordUse(_ context.Context, code, shopID, shopperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.useErr != nil {
		return m.useErr
	}
	m.uses = append(m.uses, shopID+"/"+code+"/"+shopperID)
	return nil
}

func (m *MockDiscounts) Uses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.uses)
}

type MockMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	locks    map[string]int
	unwinds  int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{outcomes: map[string]int{}, locks: map[string]int{}}
}

func (m *MockMetrics) PlaceOrderObserved(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *MockMetrics) LockAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[result]++
}

func (m *MockMetrics) Unwound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unwinds++
}

func (m *MockMetrics) Outcome(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[name]
}

func (m *MockMetrics) Unwinds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unwinds
}

type testEnv struct {
	stock     *MockStockStore
	locker    *MockLocker
	orders    *MockOrderStore
	metrics   *MockMetrics
	discounts *MockDiscounts
	svc       *CheckoutServiceImpl
}

func testConfig() Config {
	return Config{
		LockTTL:           time.Second,
		LockMaxRetries:    3,
		LockRetryDelay:    10 * time.Millisecond,
		PlaceOrderTimeout: 5 * time.Second,
		UnwindTimeout:     time.Second,
		Currency:          "USD",
	}
}

// newTestEnv wires the real aggregator over the in-memory catalog so that
// prices and discounts flow through the whole pipeline.
func newTestEnv(cfg Config, discounts map[string]decimal.Decimal) *testEnv {
	env := &testEnv{
		stock:   NewMockStockStore(),
		locker:  NewMockLocker(),
		orders:  NewMockOrderStore(),
		metrics: NewMockMetrics(),
	}
	if discounts == nil {
		discounts = map[string]decimal.Decimal{}
	}
	env.discounts = &MockDiscounts{amounts: discounts}
	aggregator := pricing.NewAggregator(env.stock, env.discounts)
	env.svc = NewCheckoutService(aggregator, env.locker, env.stock, env.orders, cfg, logger.Discard(),
		WithMetrics(env.metrics), WithDiscountUsage(env.discounts))
	return env
}

func testShipping() domain.ShippingInfo {
	return domain.ShippingInfo{
		Recipient:  "Ann Lee",
		Street:     "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}

func placeRequest(cartID, shopperID string, groups ...domain.ShopGroup) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		CartID:     cartID,
		ShopperID:  shopperID,
		ShopGroups: groups,
		Shipping:   testShipping(),
		Payment:    domain.PaymentInfo{Method: "card"},
	}
}

func group(shopID string, items ...domain.LineItem) domain.ShopGroup {
	return domain.ShopGroup{ShopID: shopID, Items: items}
}

func item(productID int64, quantity int) domain.LineItem {
	return domain.LineItem{ProductID: productID, Quantity: quantity}
}
