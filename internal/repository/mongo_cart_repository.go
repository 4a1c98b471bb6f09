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

// cartTTL expires carts nobody has touched for 90 days.
const cartTTL = 90 * 24 * time.Hour

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return nil
}

// LoadCart returns ErrCartNotFound for unknown sessions and ErrMalformedCart
// when the stored document no longer decodes.
func (m *MongoCartRepository) LoadCart(ctx context.Context, sessionKey string) ([]domain.LineItem, error) {
	raw, err := m.collection.FindOne(ctx, bson.M{"session_key": sessionKey}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	var cart domain.Cart
	if err := bson.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCart, err)
	}
	return domain.NormalizeItems(cart.Items), nil
}

func (m *MongoCartRepository) SaveCart(ctx context.Context, sessionKey string, items []domain.LineItem) error {
	if items == nil {
		items = []domain.LineItem{}
	}
	filter := bson.M{"session_key": sessionKey}
	update := bson.M{
		"$set": bson.M{
			"items":      items,
			"updated_at": time.Now().UTC(),
		},
	}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) DeleteCart(ctx context.Context, sessionKey string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"session_key": sessionKey})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}
