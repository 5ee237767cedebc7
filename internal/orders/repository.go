package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already exists")
	ErrStatusConflict = errors.New("order is not in the expected status")
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCancelled = "OrderCancelled"
	EventOrderExpired   = "OrderExpired"
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// OutboxEvent is a row written in the same transaction as the order change
// it describes.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// OrderEvent is the payload of every order outbox event.
type OrderEvent struct {
	OrderID      string          `json:"order_id"`
	CartID       string          `json:"cart_id"`
	ShopperID    string          `json:"shopper_id"`
	Status       string          `json:"status"`
	TotalPayable decimal.Decimal `json:"total_payable"`
	Currency     string          `json:"currency"`
	Items        []EventItem     `json:"items"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type EventItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderRepository interface {
	// CreateOrder stores the order and its OrderPlaced event atomically.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByShopper(ctx context.Context, shopperID string) ([]*domain.Order, error)
	// UpdateStatus moves the order from one status to another and records
	// the matching event. Returns ErrStatusConflict if it was not in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (*domain.Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error)
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	RunMigrations() error
	Close() error
}

func eventTypeFor(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusConfirmed:
		return EventOrderConfirmed
	case domain.OrderStatusCancelled:
		return EventOrderCancelled
	case domain.OrderStatusExpired:
		return EventOrderExpired
	default:
		return EventOrderPlaced
	}
}

// NewOrderEvent builds the event payload for the order's current status.
func NewOrderEvent(order *domain.Order, at time.Time) OrderEvent {
	lines := order.StockLines()
	items := make([]EventItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, EventItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return OrderEvent{
		OrderID:      order.ID.String(),
		CartID:       order.CartID,
		ShopperID:    order.ShopperID,
		Status:       order.Status.String(),
		TotalPayable: order.TotalPayable,
		Currency:     order.Currency,
		Items:        items,
		OccurredAt:   at,
	}
}
