package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes sets up the indexes used by the stock ledger, cart and
// discount lookups.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	byCollection := map[string][]mongo.IndexModel{
		"products": {
			{Keys: bson.D{{Key: "shop_id", Value: 1}}},
			{Keys: bson.D{{Key: "reservations.order_ref", Value: 1}}},
			{Keys: bson.D{{Key: "reservations.created_at", Value: 1}}},
		},
		"carts": {
			{Keys: bson.D{{Key: "shopper_id", Value: 1}}},
			{
				Keys:    bson.D{{Key: "updated_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
			},
		},
		"discounts": {
			{
				Keys:    bson.D{{Key: "shop_id", Value: 1}, {Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for name, indexes := range byCollection {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}

	return nil
}
