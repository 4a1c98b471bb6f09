package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harshees/storefront/internal/domain"
	"github.com/harshees/storefront/internal/repository"
	"github.com/sony/gobreaker/v2"
)

// ErrCatalogUnavailable is returned while the breaker is open.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerCatalog guards a ProductRepository with a circuit breaker. Business
// outcomes (missing product, short stock) do not count as failures.
type BreakerCatalog struct {
	next repository.ProductRepository
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerCatalog(next repository.ProductRepository, settings BreakerSettings, logger *slog.Logger) *BreakerCatalog {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, repository.ErrProductNotFound) ||
				errors.Is(err, repository.ErrInsufficientStock) ||
				errors.Is(err, repository.ErrInvalidStockOperation) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerCatalog{next: next, cb: cb}
}

func (b *BreakerCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, mapBreakerErr(err)
	}
	return v.(*domain.Product), nil
}

func (b *BreakerCatalog) DecrementStock(ctx context.Context, productID, size string, qty int) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.DecrementStock(ctx, productID, size, qty)
	})
	return mapBreakerErr(err)
}

// RestoreStock bypasses the breaker: compensation must be attempted even
// while the catalog is considered unhealthy.
func (b *BreakerCatalog) RestoreStock(ctx context.Context, productID, size string, qty int) error {
	return b.next.RestoreStock(ctx, productID, size, qty)
}

func (b *BreakerCatalog) State() gobreaker.State {
	return b.cb.State()
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return err
}
