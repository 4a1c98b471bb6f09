package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harshees/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProductRepository reads and decrements the catalog's products collection.
type MongoProductRepository struct {
	collection *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) *MongoProductRepository {
	return &MongoProductRepository{
		collection: db.Collection("products"),
	}
}

func (m *MongoProductRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// DecrementStock is a single conditional update: the $elemMatch guard only
// matches while the size still holds qty units, so concurrent orders cannot
// take the counter below zero.
func (m *MongoProductRepository) DecrementStock(ctx context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return ErrInvalidStockOperation
	}
	filter := bson.M{
		"_id": productID,
		"sizes": bson.M{"$elemMatch": bson.M{
			"size":  size,
			"stock": bson.M{"$gte": qty},
		}},
	}
	update := bson.M{
		"$inc": bson.M{
			"sizes.$.stock": -qty,
			"stock":         -qty,
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if result.MatchedCount == 1 {
		return nil
	}
	return m.missReason(ctx, productID)
}

func (m *MongoProductRepository) RestoreStock(ctx context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return ErrInvalidStockOperation
	}
	filter := bson.M{"_id": productID, "sizes.size": size}
	update := bson.M{
		"$inc": bson.M{
			"sizes.$.stock": qty,
			"stock":         qty,
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (m *MongoProductRepository) missReason(ctx context.Context, productID string) error {
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": productID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check product: %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return ErrInsufficientStock
}
