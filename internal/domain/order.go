package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusExpired},
}

// CanTransitionTo reports whether an order may move from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReleasesStock reports whether reservations of an order in this status
// must be given back to stock.
func (s OrderStatus) ReleasesStock() bool {
	return s == OrderStatusCancelled || s == OrderStatusExpired
}

func (s OrderStatus) String() string {
	return string(s)
}

type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ShopID      string          `json:"shop_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderShop struct {
	ShopID       string          `json:"shop_id"`
	DiscountCode string          `json:"discount_code,omitempty"`
	RawPrice     decimal.Decimal `json:"raw_price"`
	Discount     decimal.Decimal `json:"discount"`
	FinalPrice   decimal.Decimal `json:"final_price"`
}

type ShippingInfo struct {
	Recipient  string `json:"recipient"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type PaymentInfo struct {
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	CartID        string          `json:"cart_id"`
	ShopperID     string          `json:"shopper_id"`
	Status        OrderStatus     `json:"status"`
	Shipping      ShippingInfo    `json:"shipping"`
	Payment       PaymentInfo     `json:"payment"`
	Items         []OrderItem     `json:"items"`
	Shops         []OrderShop     `json:"shops"`
	TotalRaw      decimal.Decimal `json:"total_raw"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StockLines returns the order's quantities per product in ascending
// product id order.
func (o *Order) StockLines() []StockLine {
	byProduct := make(map[int64]int, len(o.Items))
	for _, item := range o.Items {
		byProduct[item.ProductID] += item.Quantity
	}
	return sortedLines(byProduct)
}
