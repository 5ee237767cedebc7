package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountFixedAmount DiscountType = "fixed_amount"
	DiscountPercentage  DiscountType = "percentage"
)

// Discount is a shop-scoped code. An empty ProductIDs list applies it to
// every product of the shop.
type Discount struct {
	Code              string          `bson:"code" json:"code"`
	ShopID            string          `bson:"shop_id" json:"shop_id"`
	Type              DiscountType    `bson:"type" json:"type"`
	Value             decimal.Decimal `bson:"value" json:"value"`
	MinOrderValue     decimal.Decimal `bson:"min_order_value" json:"min_order_value"`
	MaxUses           int             `bson:"max_uses" json:"max_uses"`
	UsesCount         int             `bson:"uses_count" json:"uses_count"`
	MaxUsesPerShopper int             `bson:"max_uses_per_shopper" json:"max_uses_per_shopper"`
	UsedBy            []string        `bson:"used_by,omitempty" json:"used_by,omitempty"`
	ProductIDs        []int64         `bson:"product_ids,omitempty" json:"product_ids,omitempty"`
	StartsAt          time.Time       `bson:"starts_at" json:"starts_at"`
	EndsAt            time.Time       `bson:"ends_at" json:"ends_at"`
	Active            bool            `bson:"active" json:"active"`
}
