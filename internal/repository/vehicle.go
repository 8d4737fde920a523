package repository

import (
	"context"

	"dispatch/internal/domain"
)

// VehicleRepository defines the operations on the fleet roster. Positions are
// not kept here; they live in the location store.
type VehicleRepository interface {
	// Create adds a new vehicle to the roster.
	Create(ctx context.Context, vehicle *domain.Vehicle) error

	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// GetByPlate retrieves a vehicle by plate number.
	GetByPlate(ctx context.Context, plate string) (*domain.Vehicle, error)

	// GetAll retrieves the whole roster.
	GetAll(ctx context.Context) ([]*domain.Vehicle, error)

	// UpdateStatus updates the status of a vehicle.
	UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error
}
