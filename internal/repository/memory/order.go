// Package memory holds the in-process order catalog owned by the dispatch console.
package memory

import (
	"context"
	"sort"
	"sync"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// OrderRepository keeps orders in a map. Callers receive copies, never the
// stored pointer, so a caller mutating its order cannot bypass Update.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

// Ensure OrderRepository implements repository.OrderRepository.
var _ repository.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository creates an empty catalog.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// Create adds a new order.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return repository.ErrAlreadyExists
	}
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

// List retrieves orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if !filter.IncludeCancelled && order.Status == domain.OrderStatusCancelled && filter.Status != domain.OrderStatusCancelled {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		copied := *order
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Update replaces an existing order.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return repository.ErrNotFound
	}
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}
