package pricing

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const defaultLookupLimit = 8

// Catalog resolves authoritative product data.
type Catalog interface {
	FindProduct(ctx context.Context, productID int64) (*domain.Product, error)
}

// DiscountCalculator returns the amount a code takes off a shop's products.
type DiscountCalculator interface {
	GetDiscountAmount(ctx context.Context, code, shopID, shopperID string, products []domain.ResolvedItem) (decimal.Decimal, error)
}

type Aggregator struct {
	catalog     Catalog
	discounts   DiscountCalculator
	lookupLimit int
}

func NewAggregator(catalog Catalog, discounts DiscountCalculator) *Aggregator {
	return &Aggregator{
		catalog:     catalog,
		discounts:   discounts,
		lookupLimit: defaultLookupLimit,
	}
}

// Review prices every shop group from the catalog and applies at most one
// discount per shop. It reads the catalog and discount service and mutates
// nothing, so unchanged inputs and backing data give the same summary.
func (a *Aggregator) Review(ctx context.Context, cartID, shopperID string, groups []domain.ShopGroup) (*domain.CheckoutSummary, error) {
	if err := validateCart(cartID, shopperID, groups); err != nil {
		return nil, err
	}

	products, err := a.fetchProducts(ctx, cartID, groups)
	if err != nil {
		return nil, err
	}

	summary := &domain.CheckoutSummary{
		CartID:        cartID,
		ShopperID:     shopperID,
		TotalRaw:      decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalPayable:  decimal.Zero,
		Shops:         make([]domain.ShopSummary, 0, len(groups)),
	}

	for _, group := range groups {
		shop, err := a.priceShop(ctx, shopperID, group, products)
		if err != nil {
			return nil, err
		}
		summary.Shops = append(summary.Shops, *shop)
		summary.TotalRaw = summary.TotalRaw.Add(shop.RawPrice)
		summary.TotalDiscount = summary.TotalDiscount.Add(shop.Discount)
		summary.TotalPayable = summary.TotalPayable.Add(shop.FinalPrice)
	}

	return summary, nil
}

func (a *Aggregator) priceShop(ctx context.Context, shopperID string, group domain.ShopGroup, products map[int64]*domain.Product) (*domain.ShopSummary, error) {
	shop := &domain.ShopSummary{
		ShopID:   group.ShopID,
		RawPrice: decimal.Zero,
		Discount: decimal.Zero,
		Items:    make([]domain.ResolvedItem, 0, len(group.Items)),
	}

	for _, item := range group.Items {
		product := products[item.ProductID]
		if product.ShopID != "" && product.ShopID != group.ShopID {
			return nil, domain.BadRequestf("product %d is not sold by shop %s", item.ProductID, group.ShopID)
		}

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		shop.Items = append(shop.Items, domain.ResolvedItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			Subtotal:  subtotal,
		})
		shop.RawPrice = shop.RawPrice.Add(subtotal)
	}

	if code := group.DiscountCode(); code != "" {
		amount, err := a.discounts.GetDiscountAmount(ctx, code, group.ShopID, shopperID, shop.Items)
		if err != nil {
			return nil, err
		}
		shop.DiscountCode = code
		if amount.IsPositive() {
			// payable never drops below zero
			shop.Discount = decimal.Min(amount, shop.RawPrice)
		}
	}

	shop.FinalPrice = shop.RawPrice.Sub(shop.Discount)
	return shop, nil
}

// fetchProducts looks every distinct product up once, concurrently.
func (a *Aggregator) fetchProducts(ctx context.Context, cartID string, groups []domain.ShopGroup) (map[int64]*domain.Product, error) {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, group := range groups {
		for _, item := range group.Items {
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}

	found := make([]*domain.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.lookupLimit)
	for i, id := range ids {
		g.Go(func() error {
			product, err := a.catalog.FindProduct(gctx, id)
			if errors.Is(err, repository.ErrProductNotFound) {
				return domain.NotFoundf("product %d", id)
			}
			if err != nil {
				return &domain.StorageError{Stage: "catalog lookup", CartID: cartID, ProductID: id, Err: err}
			}
			found[i] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products := make(map[int64]*domain.Product, len(ids))
	for i, id := range ids {
		products[id] = found[i]
	}
	return products, nil
}

func validateCart(cartID, shopperID string, groups []domain.ShopGroup) error {
	if cartID == "" {
		return domain.BadRequestf("cart id is required")
	}
	if shopperID == "" {
		return domain.BadRequestf("shopper id is required")
	}
	if len(groups) == 0 {
		return domain.BadRequestf("cart %s is empty", cartID)
	}

	shops := make(map[string]struct{}, len(groups))
	for _, group := range groups {
		if group.ShopID == "" {
			return domain.BadRequestf("shop group without shop id")
		}
		if _, dup := shops[group.ShopID]; dup {
			return domain.BadRequestf("shop %s appears twice in cart", group.ShopID)
		}
		shops[group.ShopID] = struct{}{}

		if len(group.Items) == 0 {
			return domain.BadRequestf("shop %s has no items", group.ShopID)
		}
		for _, item := range group.Items {
			if item.ProductID <= 0 {
				return domain.BadRequestf("invalid product id %d", item.ProductID)
			}
			if item.Quantity <= 0 {
				return domain.BadRequestf("invalid quantity %d for product %d", item.Quantity, item.ProductID)
			}
		}
	}
	return nil
}
