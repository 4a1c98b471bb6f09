package repository

import (
	"context"
	"sync"
	"time"

	"github.com/harshees/storefront/internal/domain"
)

// MemoryProductStore implements ProductRepository with in-memory storage.
type MemoryProductStore struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{
		products: make(map[string]*domain.Product),
	}
}

// SetProduct stores a copy of p, recomputing the aggregate stock from its sizes.
func (s *MemoryProductStore) SetProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Sizes = append([]domain.SizeStock(nil), p.Sizes...)
	p.Images = append([]string(nil), p.Images...)
	p.Stock = 0
	for _, size := range p.Sizes {
		p.Stock += size.Stock
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = &p
}

func (s *MemoryProductStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, ErrProductNotFound
	}
	out := *p
	out.Sizes = append([]domain.SizeStock(nil), p.Sizes...)
	out.Images = append([]string(nil), p.Images...)
	return &out, nil
}

func (s *MemoryProductStore) DecrementStock(_ context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return ErrInvalidStockOperation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return ErrProductNotFound
	}
	i := sizeIndex(p, size)
	if i < 0 || p.Sizes[i].Stock < qty {
		return ErrInsufficientStock
	}

	p.Sizes[i].Stock -= qty
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryProductStore) RestoreStock(_ context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return ErrInvalidStockOperation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return ErrProductNotFound
	}
	i := sizeIndex(p, size)
	if i < 0 {
		return ErrProductNotFound
	}

	p.Sizes[i].Stock += qty
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func sizeIndex(p *domain.Product, size string) int {
	for i := range p.Sizes {
		if p.Sizes[i].Size == size {
			return i
		}
	}
	return -1
}
