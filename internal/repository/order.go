package repository

import (
	"context"

	"dispatch/internal/domain"
)

// OrderFilter narrows an order listing.
type OrderFilter struct {
	// IncludeCancelled keeps cancelled orders in the listing. The console's
	// active view leaves them out.
	IncludeCancelled bool
	Status           domain.OrderStatus // Optional: empty means any status
}

// OrderRepository defines the catalog operations for orders.
type OrderRepository interface {
	// Create adds a new order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List retrieves orders matching the filter, newest first.
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)

	// Update replaces an existing order.
	Update(ctx context.Context, order *domain.Order) error
}
