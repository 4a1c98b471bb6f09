package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/harshees/storefront/internal/cache"
	"github.com/harshees/storefront/internal/domain"
	"github.com/harshees/storefront/internal/repository"
)

var errStorageDown = errors.New("storage down")

// mockCartRepository implements repository.CartRepository for testing
type mockCartRepository struct {
	m       sync.RWMutex
	carts   map[string][]domain.LineItem
	loadErr error
	saveErr error
	saves   int
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{carts: make(map[string][]domain.LineItem)}
}

func (m *mockCartRepository) LoadCart(_ context.Context, key string) ([]domain.LineItem, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	items, ok := m.carts[key]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return append([]domain.LineItem{}, items...), nil
}

func (m *mockCartRepository) SaveCart(_ context.Context, key string, items []domain.LineItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.carts[key] = append([]domain.LineItem{}, items...)
	return nil
}

func (m *mockCartRepository) DeleteCart(_ context.Context, key string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.carts[key]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, key)
	return nil
}

func (m *mockCartRepository) stored(key string) ([]domain.LineItem, bool) {
	m.m.RLock()
	defer m.m.RUnlock()
	items, ok := m.carts[key]
	return items, ok
}

func (m *mockCartRepository) saveCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.saves
}

// mockCartCache implements cache.CartCache for testing
type mockCartCache struct {
	m     sync.Mutex
	items map[string][]domain.LineItem
	gets  int
}

func newMockCartCache() *mockCartCache {
	return &mockCartCache{items: make(map[string][]domain.LineItem)}
}

func (c *mockCartCache) Get(_ context.Context, key string) ([]domain.LineItem, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.gets++
	items, ok := c.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]domain.LineItem{}, items...), nil
}

func (c *mockCartCache) Set(_ context.Context, key string, items []domain.LineItem) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.items[key] = append([]domain.LineItem{}, items...)
	return nil
}

func (c *mockCartCache) Delete(_ context.Context, key string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.items, key)
	return nil
}

// mockOrderRepository implements repository.OrderRepository for testing
type mockOrderRepository struct {
	m       sync.RWMutex
	orders  map[uuid.UUID]*domain.Order
	numbers map[string]bool

	saveErr       error
	updateErr     error
	duplicateOnce int
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		orders:  make(map[uuid.UUID]*domain.Order),
		numbers: make(map[string]bool),
	}
}

func (r *mockOrderRepository) SaveOrder(_ context.Context, order *domain.Order) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.duplicateOnce > 0 {
		r.duplicateOnce--
		return repository.ErrDuplicateOrderNumber
	}
	if r.numbers[order.OrderNumber] {
		return repository.ErrDuplicateOrderNumber
	}
	r.numbers[order.OrderNumber] = true
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *mockOrderRepository) UpdateOrder(_ context.Context, id uuid.UUID, patch domain.OrderPatch) (*domain.Order, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	order, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	patch.ApplyTo(order)
	return cloneOrder(order), nil
}

func (r *mockOrderRepository) FindOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *mockOrderRepository) ListOrders(_ context.Context, userID string, page, limit int) ([]*domain.Order, int, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	var mine []*domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			mine = append(mine, cloneOrder(o))
		}
	}
	// newest first
	for i := 1; i < len(mine); i++ {
		for j := i; j > 0 && mine[j].CreatedAt.After(mine[j-1].CreatedAt); j-- {
			mine[j], mine[j-1] = mine[j-1], mine[j]
		}
	}
	start := (page - 1) * limit
	if start >= len(mine) {
		return nil, len(mine), nil
	}
	end := min(start+limit, len(mine))
	return mine[start:end], len(mine), nil
}

func (r *mockOrderRepository) all() []*domain.Order {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, cloneOrder(o))
	}
	return out
}

func cloneOrder(o *domain.Order) *domain.Order {
	data, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	var out domain.Order
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

// faultyCatalog fails DecrementStock for one product.
type faultyCatalog struct {
	*repository.MemoryProductStore
	failProduct string
	failErr     error
}

func (f *faultyCatalog) DecrementStock(ctx context.Context, productID, size string, qty int) error {
	if productID == f.failProduct {
		return f.failErr
	}
	return f.MemoryProductStore.DecrementStock(ctx, productID, size, qty)
}

// failingCatalog fails every lookup with an infrastructure error.
type failingCatalog struct {
	*repository.MemoryProductStore
	calls int
}

func (f *failingCatalog) GetProduct(context.Context, string) (*domain.Product, error) {
	f.calls++
	return nil, errStorageDown
}

// mockClearer implements CartClearer for testing
type mockClearer struct {
	m       sync.Mutex
	cleared []string
	err     error
}

func (c *mockClearer) ClearCart(_ context.Context, userID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.cleared = append(c.cleared, userID)
	return c.err
}

func (c *mockClearer) calls() []string {
	c.m.Lock()
	defer c.m.Unlock()
	return append([]string{}, c.cleared...)
}
