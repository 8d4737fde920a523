package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

const uniqueViolation = pq.ErrorCode("23505")

const vehicleColumns = `id, plate_number, COALESCE(driver_name, ''), COALESCE(vehicle_type, ''), wallet_balance, status`

// Create adds a new vehicle.
func (r *VehicleRepository) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	query := `
		INSERT INTO vehicles (id, plate_number, driver_name, vehicle_type, wallet_balance, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query,
		vehicle.ID,
		vehicle.PlateNumber,
		vehicle.DriverName,
		vehicle.Type,
		vehicle.WalletBalance,
		vehicle.Status,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repository.ErrAlreadyExists
	}
	return err
}

// GetByID retrieves a vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByPlate retrieves a vehicle by plate number.
func (r *VehicleRepository) GetByPlate(ctx context.Context, plate string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE plate_number = $1`
	return r.getOne(ctx, query, plate)
}

func (r *VehicleRepository) getOne(ctx context.Context, query string, arg any) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&vehicle.ID,
		&vehicle.PlateNumber,
		&vehicle.DriverName,
		&vehicle.Type,
		&vehicle.WalletBalance,
		&vehicle.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &vehicle, nil
}

// GetAll retrieves the whole roster.
func (r *VehicleRepository) GetAll(ctx context.Context) ([]*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY plate_number`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		var vehicle domain.Vehicle
		if err := rows.Scan(
			&vehicle.ID,
			&vehicle.PlateNumber,
			&vehicle.DriverName,
			&vehicle.Type,
			&vehicle.WalletBalance,
			&vehicle.Status,
		); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, &vehicle)
	}
	return vehicles, rows.Err()
}

// UpdateStatus updates the status of a vehicle.
func (r *VehicleRepository) UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error {
	query := `UPDATE vehicles SET status = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
