package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/harshees/storefront/internal/domain"
)

var (
	ErrCartNotFound          = errors.New("cart not found")
	ErrMalformedCart         = errors.New("persisted cart is malformed")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrderNumber  = errors.New("order number already exists")
	ErrInvalidStockOperation = errors.New("stock quantity must be positive")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository persists cart line items by session key.
type CartRepository interface {
	LoadCart(ctx context.Context, sessionKey string) ([]domain.LineItem, error)
	SaveCart(ctx context.Context, sessionKey string, items []domain.LineItem) error
	DeleteCart(ctx context.Context, sessionKey string) error
}

// ProductRepository is the authoritative catalog for prices and stock.
type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// DecrementStock atomically takes qty units of size, failing with
	// ErrInsufficientStock when fewer remain. The per-size and aggregate
	// counters move together.
	DecrementStock(ctx context.Context, productID, size string, qty int) error
	// RestoreStock returns qty units previously taken by DecrementStock.
	RestoreStock(ctx context.Context, productID, size string, qty int) error
}

// OrderRepository is the order ledger. Orders are never deleted.
type OrderRepository interface {
	SaveOrder(ctx context.Context, order *domain.Order) error
	UpdateOrder(ctx context.Context, id uuid.UUID, patch domain.OrderPatch) (*domain.Order, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string, page, limit int) ([]*domain.Order, int, error)
}
