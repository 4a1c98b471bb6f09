package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/harshees/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupMongo(t *testing.T) *mongo.Database {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoOptions{URI: uri, Database: "testdb", MinPoolSize: 1})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return db
}

func TestMongoCart_RoundTrip(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	repo := NewMongoCartRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	_, err := repo.LoadCart(ctx, "user-1")
	assert.ErrorIs(t, err, ErrCartNotFound)

	items := []domain.LineItem{
		{ProductID: "p1", Name: "Tee", UnitPriceMinor: 49900, Size: "M", Quantity: 2},
		{ProductID: "p1", Name: "Tee", UnitPriceMinor: 49900, Size: "L", Quantity: 1},
	}
	require.NoError(t, repo.SaveCart(ctx, "user-1", items))

	loaded, err := repo.LoadCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, items, loaded)

	require.NoError(t, repo.SaveCart(ctx, "user-1", nil))
	loaded, err = repo.LoadCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, repo.DeleteCart(ctx, "user-1"))
	assert.ErrorIs(t, repo.DeleteCart(ctx, "user-1"), ErrCartNotFound)
}

func TestMongoCart_MalformedDocument(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	repo := NewMongoCartRepository(db)

	_, err := db.Collection("carts").InsertOne(ctx, bson.M{"session_key": "broken", "items": "not-a-list"})
	require.NoError(t, err)

	_, err = repo.LoadCart(ctx, "broken")
	assert.ErrorIs(t, err, ErrMalformedCart)
}

func seedProduct(t *testing.T, repo *MongoProductRepository, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{
		ID:         "tee-black",
		Name:       "Black Tee",
		PriceMinor: 149900,
		Images:     []string{"tee-black-front.jpg"},
		Sizes:      []domain.SizeStock{{Size: "M", Stock: stock}, {Size: "L", Stock: 1}},
		Stock:      stock + 1,
	}
	_, err := repo.collection.InsertOne(context.Background(), p)
	require.NoError(t, err)
	return p
}

func TestMongoProduct_DecrementAndRestore(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	repo := NewMongoProductRepository(db)
	seedProduct(t, repo, 3)

	require.NoError(t, repo.DecrementStock(ctx, "tee-black", "M", 2))

	p, err := repo.GetProduct(ctx, "tee-black")
	require.NoError(t, err)
	stock, ok := p.StockFor("M")
	require.True(t, ok)
	assert.Equal(t, 1, stock)
	assert.Equal(t, 2, p.Stock)

	assert.ErrorIs(t, repo.DecrementStock(ctx, "tee-black", "M", 2), ErrInsufficientStock)
	assert.ErrorIs(t, repo.DecrementStock(ctx, "tee-black", "XXL", 1), ErrInsufficientStock)
	assert.ErrorIs(t, repo.DecrementStock(ctx, "missing", "M", 1), ErrProductNotFound)
	assert.ErrorIs(t, repo.DecrementStock(ctx, "tee-black", "M", 0), ErrInvalidStockOperation)

	require.NoError(t, repo.RestoreStock(ctx, "tee-black", "M", 2))
	p, err = repo.GetProduct(ctx, "tee-black")
	require.NoError(t, err)
	stock, _ = p.StockFor("M")
	assert.Equal(t, 3, stock)
	assert.Equal(t, 4, p.Stock)
}

func TestMongoProduct_ConcurrentDecrementNeverOversells(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	repo := NewMongoProductRepository(db)
	seedProduct(t, repo, 5)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.DecrementStock(ctx, "tee-black", "M", 1); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())
	p, err := repo.GetProduct(ctx, "tee-black")
	require.NoError(t, err)
	stock, _ := p.StockFor("M")
	assert.Equal(t, 0, stock)
}

func TestMongoProduct_GetProductNotFound(t *testing.T) {
	db := setupMongo(t)
	repo := NewMongoProductRepository(db)

	_, err := repo.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrProductNotFound)
}
