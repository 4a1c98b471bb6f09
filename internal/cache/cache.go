package cache

import (
	"context"
	"errors"

	"github.com/harshees/storefront/internal/domain"
)

// CartCache is a read-through copy of persisted carts keyed by session.
type CartCache interface {
	Get(ctx context.Context, sessionKey string) ([]domain.LineItem, error)
	Set(ctx context.Context, sessionKey string, items []domain.LineItem) error
	Delete(ctx context.Context, sessionKey string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrCorruptEntry means the cached value no longer decodes and was dropped.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)
