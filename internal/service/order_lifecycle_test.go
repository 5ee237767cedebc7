package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeTestOrder(t *testing.T, env *testEnv, shopperID string) *domain.Order {
	t.Helper()
	order, err := env.svc.PlaceOrder(context.Background(), placeRequest("cart-"+shopperID, shopperID,
		group("shop-a", item(1, 2), item(2, 1))))
	require.NoError(t, err)
	return order
}

func newLifecycleEnv() *testEnv {
	env := newTestEnv(testConfig(), nil)
	env.stock.AddProduct(1, "shop-a", "10", 10)
	env.stock.AddProduct(2, "shop-a", "20", 10)
	return env
}

func TestGetOrder_ScopedToShopper(t *testing.T) {
	env := newLifecycleEnv()
	order := placeTestOrder(t, env, "user-1")

	got, err := env.svc.GetOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = env.svc.GetOrder(context.Background(), order.ID, "user-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.GetOrder(context.Background(), uuid.New(), "user-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOrders(t *testing.T) {
	env := newLifecycleEnv()
	placeTestOrder(t, env, "user-1")
	placeTestOrder(t, env, "user-2")

	list, err := env.svc.ListOrders(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.svc.ListOrders(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestConfirmOrder(t *testing.T) {
	env := newLifecycleEnv()
	order := placeTestOrder(t, env, "user-1")

	confirmed, err := env.svc.ConfirmOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)
	assert.Equal(t, 8, env.stock.Stock(1), "confirmed orders keep their stock")
	assert.True(t, env.stock.Committed(1, order.ID.String()))
	assert.True(t, env.stock.Committed(2, order.ID.String()))

	_, err = env.svc.CancelOrder(context.Background(), order.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	env := newLifecycleEnv()
	order := placeTestOrder(t, env, "user-1")
	require.Equal(t, 8, env.stock.Stock(1))
	require.Equal(t, 9, env.stock.Stock(2))

	cancelled, err := env.svc.CancelOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, env.stock.Stock(1))
	assert.Equal(t, 10, env.stock.Stock(2))
	assert.Zero(t, env.stock.ReservationCount())

	_, err = env.svc.CancelOrder(context.Background(), order.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Equal(t, 10, env.stock.Stock(1), "second cancel must not release twice")
}

func TestCancelOrder_OtherShopper(t *testing.T) {
	env := newLifecycleEnv()
	order := placeTestOrder(t, env, "user-1")

	_, err := env.svc.CancelOrder(context.Background(), order.ID, "user-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 8, env.stock.Stock(1))
}

func TestCancelOrder_ReleaseFaultStillCancels(t *testing.T) {
	env := newLifecycleEnv()
	order := placeTestOrder(t, env, "user-1")
	env.stock.releaseErr = errors.New("timeout")

	cancelled, err := env.svc.CancelOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 2, env.stock.ReservationCount(), "left for the orphan sweep")
}

func TestExpireStaleOrders(t *testing.T) {
	env := newLifecycleEnv()
	stale := placeTestOrder(t, env, "user-1")
	confirmed := placeTestOrder(t, env, "user-2")
	_, err := env.svc.ConfirmOrder(context.Background(), confirmed.ID, "user-2")
	require.NoError(t, err)

	expired, err := env.svc.ExpireStaleOrders(context.Background(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := env.svc.GetOrder(context.Background(), stale.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, got.Status)
	assert.Equal(t, 8, env.stock.Stock(1), "only the confirmed order still holds stock")
	assert.Equal(t, 9, env.stock.Stock(2))

	expired, err = env.svc.ExpireStaleOrders(context.Background(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestReleaseOrphanReservations(t *testing.T) {
	env := newLifecycleEnv()
	old := time.Now().Add(-time.Hour)

	live := placeTestOrder(t, env, "user-1")
	cancelled := &domain.Order{
		ID: uuid.New(), CartID: "cart-x", ShopperID: "user-3", Status: domain.OrderStatusCancelled,
	}
	env.orders.Put(cancelled)

	// reservations of the live order are recent; age them with the rest
	env.stock.mu.Lock()
	for key, res := range env.stock.reservations {
		res.CreatedAt = old
		env.stock.reservations[key] = res
	}
	env.stock.mu.Unlock()

	neverStored := uuid.NewString()
	env.stock.AddReservation(domain.Reservation{OrderRef: neverStored, CartID: "cart-y", ProductID: 1, Quantity: 3, CreatedAt: old})
	env.stock.AddReservation(domain.Reservation{OrderRef: cancelled.ID.String(), CartID: "cart-x", ProductID: 2, Quantity: 4, CreatedAt: old})
	env.stock.AddReservation(domain.Reservation{OrderRef: "not-a-uuid", CartID: "cart-z", ProductID: 2, Quantity: 1, CreatedAt: old})
	env.stock.AddReservation(domain.Reservation{OrderRef: uuid.NewString(), CartID: "cart-new", ProductID: 1, Quantity: 1, CreatedAt: time.Now()})

	released, err := env.svc.ReleaseOrphanReservations(context.Background(), time.Now().Add(-time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, released)

	assert.Equal(t, 7, env.stock.Stock(1), "live order (2) and the recent reservation (1) stay")
	assert.Equal(t, 9, env.stock.Stock(2), "live order (1) stays")
	assert.Equal(t, 3, env.stock.ReservationCount())

	_, err = env.svc.GetOrder(context.Background(), live.ID, "user-1")
	require.NoError(t, err)
}

func TestConfirmOrder_CommitFailureStillConfirms(t *testing.T) {
	env := newLifecycleEnv()
	order := placeTestOrder(t, env, "user-1")
	env.stock.commitErr = errors.New("mongo unavailable")

	confirmed, err := env.svc.ConfirmOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)
	assert.False(t, env.stock.Committed(1, order.ID.String()))

	// the next sweep commits what confirm could not
	env.stock.commitErr = nil
	released, err := env.svc.ReleaseOrphanReservations(context.Background(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.True(t, env.stock.Committed(1, order.ID.String()))
	assert.Equal(t, 8, env.stock.Stock(1))
}

func TestReleaseOrphanReservations_ReachesOrphanBehindConfirmedBacklog(t *testing.T) {
	env := newLifecycleEnv()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		confirmed := &domain.Order{ID: uuid.New(), CartID: "cart-c", ShopperID: "user-1", Status: domain.OrderStatusConfirmed}
		env.orders.Put(confirmed)
		env.stock.AddReservation(domain.Reservation{
			OrderRef: confirmed.ID.String(), CartID: "cart-c", ProductID: 1, Quantity: 1,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	orphan := uuid.NewString()
	env.stock.AddReservation(domain.Reservation{OrderRef: orphan, CartID: "cart-o", ProductID: 2, Quantity: 2, CreatedAt: base.Add(time.Minute)})
	require.Equal(t, 8, env.stock.Stock(2))

	released, err := env.svc.ReleaseOrphanReservations(context.Background(), time.Now().Add(-time.Minute), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 10, env.stock.Stock(2))
	assert.Equal(t, 7, env.stock.Stock(1), "confirmed reservations keep their stock")

	// confirmed reservations were committed and drop out of later scans
	env.stock.listCalls = 0
	released, err = env.svc.ReleaseOrphanReservations(context.Background(), time.Now().Add(-time.Minute), 3)
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Equal(t, 1, env.stock.listCalls)
}

func TestReleaseOrphanReservations_PagesPastPendingOrders(t *testing.T) {
	env := newLifecycleEnv()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		pending := &domain.Order{ID: uuid.New(), CartID: "cart-p", ShopperID: "user-1", Status: domain.OrderStatusPending}
		env.orders.Put(pending)
		// identical timestamps force the order_ref tiebreak
		env.stock.AddReservation(domain.Reservation{OrderRef: pending.ID.String(), CartID: "cart-p", ProductID: 1, Quantity: 1, CreatedAt: base})
	}
	orphan := uuid.NewString()
	env.stock.AddReservation(domain.Reservation{OrderRef: orphan, CartID: "cart-o", ProductID: 2, Quantity: 3, CreatedAt: base.Add(time.Second)})

	released, err := env.svc.ReleaseOrphanReservations(context.Background(), time.Now().Add(-time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, 10, env.stock.Stock(2))
	assert.Equal(t, 5, env.stock.Stock(1), "pending orders keep their stock until they expire")
	assert.Equal(t, 5, env.stock.ReservationCount())
	assert.Equal(t, 4, env.stock.listCalls, "three full pages, then an empty one ends the walk")
}

func TestReleaseOrphanReservations_RejectsZeroPage(t *testing.T) {
	env := newLifecycleEnv()

	_, err := env.svc.ReleaseOrphanReservations(context.Background(), time.Now(), 0)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func newDiscountedOrder(t *testing.T) (*testEnv, *domain.Order) {
	t.Helper()
	env := newTestEnv(testConfig(), map[string]decimal.Decimal{
		"shop-a/SAVE10": decimal.NewFromInt(10),
		"shop-b/FIVE":   decimal.NewFromInt(5),
	})
	env.stock.AddProduct(1, "shop-a", "25", 10)
	env.stock.AddProduct(2, "shop-b", "30", 10)
	env.stock.AddProduct(3, "shop-c", "15", 10)

	shopA := group("shop-a", item(1, 2))
	shopA.DiscountCodes = []string{"SAVE10"}
	shopB := group("shop-b", item(2, 1))
	shopB.DiscountCodes = []string{"FIVE"}

	order, err := env.svc.PlaceOrder(context.Background(),
		placeRequest("cart-1", "user-1", shopA, shopB, group("shop-c", item(3, 1))))
	require.NoError(t, err)
	return env, order
}

func TestConfirmOrder_RecordsDiscountUse(t *testing.T) {
	env, order := newDiscountedOrder(t)
	assert.Empty(t, env.discounts.Uses(), "placing an order does not redeem its codes")

	_, err := env.svc.ConfirmOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"shop-a/SAVE10/user-1", "shop-b/FIVE/user-1"}, env.discounts.Uses())
}

func TestCancelOrder_LeavesDiscountUnused(t *testing.T) {
	env, order := newDiscountedOrder(t)

	_, err := env.svc.CancelOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)

	assert.Empty(t, env.discounts.Uses())
}

func TestConfirmOrder_DiscountUseFailureStillConfirms(t *testing.T) {
	env, order := newDiscountedOrder(t)
	env.discounts.useErr = errors.New("mongo down")

	confirmed, err := env.svc.ConfirmOrder(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)
	assert.True(t, env.stock.Committed(1, order.ID.String()))
}
