package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the flat catalog and stock record. Stock is only ever changed by
// the conditional decrement and its compensating release.
type Product struct {
	ID           int64           `bson:"_id" json:"id"`
	ShopID       string          `bson:"shop_id" json:"shop_id"`
	Name         string          `bson:"name" json:"name"`
	Price        decimal.Decimal `bson:"price" json:"price"`
	Stock        int             `bson:"stock" json:"stock"`
	Reservations []Reservation   `bson:"reservations,omitempty" json:"reservations,omitempty"`
}

// Reservation records stock provisionally committed to an order. Committed
// is set once the order is confirmed; such reservations are never released.
type Reservation struct {
	OrderRef  string    `bson:"order_ref" json:"order_ref"`
	CartID    string    `bson:"cart_id" json:"cart_id"`
	ProductID int64     `bson:"-" json:"product_id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	Committed bool      `bson:"committed,omitempty" json:"committed,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
