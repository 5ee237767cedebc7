package domain

import "github.com/shopspring/decimal"

// CheckoutSummary is rebuilt on every review and never persisted on its own.
type CheckoutSummary struct {
	CartID        string          `json:"cart_id"`
	ShopperID     string          `json:"shopper_id"`
	TotalRaw      decimal.Decimal `json:"total_raw"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	Shops         []ShopSummary   `json:"shops"`
}

type ShopSummary struct {
	ShopID       string          `json:"shop_id"`
	DiscountCode string          `json:"discount_code,omitempty"`
	RawPrice     decimal.Decimal `json:"raw_price"`
	Discount     decimal.Decimal `json:"discount"`
	FinalPrice   decimal.Decimal `json:"final_price"`
	Items        []ResolvedItem  `json:"items"`
}

// ResolvedItem is a line item priced from the catalog at review time.
type ResolvedItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// StockLine is the total quantity of one product across all shop groups.
type StockLine struct {
	ProductID int64
	Quantity  int
}
