package domain

import "time"

// Cart is the shopper's multi-shop cart. It is read-only input to checkout.
type Cart struct {
	ID         string      `bson:"_id" json:"id"`
	ShopperID  string      `bson:"shopper_id" json:"shopper_id"`
	ShopGroups []ShopGroup `bson:"shop_groups" json:"shop_groups"`
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `bson:"updated_at" json:"updated_at"`
}

// ShopGroup holds the line items of one seller. At most one of its discount
// codes is applied.
type ShopGroup struct {
	ShopID        string     `bson:"shop_id" json:"shop_id"`
	DiscountCodes []string   `bson:"discount_codes,omitempty" json:"discount_codes,omitempty"`
	Items         []LineItem `bson:"items" json:"items"`
}

type LineItem struct {
	ProductID int64 `bson:"product_id" json:"product_id"`
	Quantity  int   `bson:"quantity" json:"quantity"`
}

// DiscountCode returns the code applied to the group, or "" when none is set.
func (g ShopGroup) DiscountCode() string {
	for _, code := range g.DiscountCodes {
		if code != "" {
			return code
		}
	}
	return ""
}
