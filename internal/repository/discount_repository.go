package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type discountRepository struct {
	collection *mongo.Collection
}

func (m discountRepository) FindDiscount(ctx context.Context, code, shopID string) (*domain.Discount, error) {
	var discount domain.Discount

	filter := bson.M{"code": code, "shop_id": shopID}
	err := m.collection.FindOne(ctx, filter).Decode(&discount)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDiscountNotFound
		}
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}

	return &discount, nil
}

func (m discountRepository) SaveDiscount(ctx context.Context, discount *domain.Discount) error {
	filter := bson.M{"code": discount.Code, "shop_id": discount.ShopID}
	opts := options.Replace().SetUpsert(true)

	if _, err := m.collection.ReplaceOne(ctx, filter, discount, opts); err != nil {
		return fmt.Errorf("failed to save discount: %w", err)
	}

	return nil
}

func (m discountRepository) RecordUse(ctx context.Context, code, shopID, shopperID string) error {
	filter := bson.M{"code": code, "shop_id": shopID}
	update := bson.M{
		"$inc":  bson.M{"uses_count": 1},
		"$push": bson.M{"used_by": shopperID},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to record discount use: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrDiscountNotFound
	}

	return nil
}

func NewDiscountRepository(db *mongo.Database) DiscountRepository {
	return &discountRepository{
		collection: db.Collection("discounts"),
	}
}
