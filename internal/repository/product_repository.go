package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type productRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func (m productRepository) FindProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var product domain.Product

	opts := options.FindOne().SetProjection(bson.M{"reservations": 0})
	err := m.collection.FindOne(ctx, bson.M{"_id": productID}, opts).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &product, nil
}

func (m productRepository) Reserve(ctx context.Context, productID int64, quantity int, orderRef, cartID string) (*domain.Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	reservation := domain.Reservation{
		OrderRef:  orderRef,
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: m.now().UTC().Truncate(time.Millisecond),
	}

	filter := bson.M{
		"_id":   productID,
		"stock": bson.M{"$gte": quantity},
	}
	update := bson.M{
		"$inc":  bson.M{"stock": -quantity},
		"$push": bson.M{"reservations": reservation},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 1, "stock": 1})

	var updated domain.Product
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		exists, countErr := m.collection.CountDocuments(ctx, bson.M{"_id": productID}, options.Count().SetLimit(1))
		if countErr != nil {
			return nil, fmt.Errorf("failed to check product: %w", countErr)
		}
		if exists == 0 {
			return nil, ErrProductNotFound
		}
		return nil, ErrInsufficientStock
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	return &reservation, nil
}

func (m productRepository) Release(ctx context.Context, productID int64, orderRef string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	filter := bson.M{
		"_id": productID,
		"reservations": bson.M{"$elemMatch": bson.M{
			"order_ref": orderRef,
			"quantity":  quantity,
		}},
	}
	update := bson.M{
		"$inc":  bson.M{"stock": quantity},
		"$pull": bson.M{"reservations": bson.M{"order_ref": orderRef}},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrReservationNotFound
	}

	return nil
}

type reservationRow struct {
	ProductID int64     `bson:"product_id"`
	OrderRef  string    `bson:"order_ref"`
	CartID    string    `bson:"cart_id"`
	Quantity  int       `bson:"quantity"`
	CreatedAt time.Time `bson:"created_at"`
}

func (m productRepository) CommitReservations(ctx context.Context, orderRef string) error {
	filter := bson.M{"reservations.order_ref": orderRef}
	update := bson.M{"$set": bson.M{"reservations.$[r].committed": true}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"r.order_ref": orderRef}},
	})

	if _, err := m.collection.UpdateMany(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to commit reservations: %w", err)
	}

	return nil
}

func (m productRepository) ListReservationsBefore(ctx context.Context, cutoff time.Time, after *domain.Reservation, limit int) ([]domain.Reservation, error) {
	open := bson.M{
		"reservations.created_at": bson.M{"$lt": cutoff},
		"reservations.committed":  bson.M{"$ne": true},
	}
	if after != nil {
		open["$or"] = bson.A{
			bson.M{"reservations.created_at": bson.M{"$gt": after.CreatedAt}},
			bson.M{"reservations.created_at": after.CreatedAt, "reservations.order_ref": bson.M{"$gt": after.OrderRef}},
			bson.M{"reservations.created_at": after.CreatedAt, "reservations.order_ref": after.OrderRef, "_id": bson.M{"$gt": after.ProductID}},
		}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"reservations": bson.M{"$elemMatch": bson.M{
			"created_at": bson.M{"$lt": cutoff},
			"committed":  bson.M{"$ne": true},
		}}}}},
		{{Key: "$unwind", Value: "$reservations"}},
		{{Key: "$match", Value: open}},
		{{Key: "$sort", Value: bson.D{
			{Key: "reservations.created_at", Value: 1},
			{Key: "reservations.order_ref", Value: 1},
			{Key: "_id", Value: 1},
		}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.M{
			"_id":        0,
			"product_id": "$_id",
			"order_ref":  "$reservations.order_ref",
			"cart_id":    "$reservations.cart_id",
			"quantity":   "$reservations.quantity",
			"created_at": "$reservations.created_at",
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []reservationRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}

	reservations := make([]domain.Reservation, 0, len(rows))
	for _, row := range rows {
		reservations = append(reservations, domain.Reservation{
			OrderRef:  row.OrderRef,
			CartID:    row.CartID,
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			CreatedAt: row.CreatedAt,
		})
	}

	return reservations, nil
}

// SaveProduct upserts catalog fields and stock. The reservation trail is
// left untouched.
func (m productRepository) SaveProduct(ctx context.Context, product *domain.Product) error {
	filter := bson.M{"_id": product.ID}
	update := bson.M{
		"$set": bson.M{
			"shop_id": product.ShopID,
			"name":    product.Name,
			"price":   product.Price,
			"stock":   product.Stock,
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}

	return nil
}

func NewProductRepository(db *mongo.Database) ProductRepository {
	return &productRepository{
		collection: db.Collection("products"),
		now:        time.Now,
	}
}
