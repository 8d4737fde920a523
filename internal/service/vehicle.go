package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// VehicleService handles the roster and driver position reports that feed
// the fleet snapshots.
type VehicleService struct {
	locationStore redis.LocationStoreInterface
	rosterCache   redis.RosterCacheInterface
	vehicleRepo   repository.VehicleRepository
}

// NewVehicleService creates a new VehicleService. rosterCache may be nil.
func NewVehicleService(
	locationStore redis.LocationStoreInterface,
	rosterCache redis.RosterCacheInterface,
	vehicleRepo repository.VehicleRepository,
) *VehicleService {
	return &VehicleService{
		locationStore: locationStore,
		rosterCache:   rosterCache,
		vehicleRepo:   vehicleRepo,
	}
}

// RegisterVehicleRequest contains the parameters for adding a vehicle.
type RegisterVehicleRequest struct {
	PlateNumber   string
	DriverName    string
	Type          string
	WalletBalance int
}

// Register adds a vehicle to the roster. It starts OFFLINE until its first
// position report.
func (s *VehicleService) Register(ctx context.Context, req RegisterVehicleRequest) (*domain.Vehicle, error) {
	plate := strings.TrimSpace(req.PlateNumber)
	if plate == "" {
		return nil, &ValidationError{Fields: []string{"PlateNumber"}}
	}

	vehicle := &domain.Vehicle{
		ID:            uuid.New().String(),
		PlateNumber:   plate,
		DriverName:    strings.TrimSpace(req.DriverName),
		Type:          req.Type,
		WalletBalance: req.WalletBalance,
		Status:        domain.VehicleStatusOffline,
	}

	if err := s.vehicleRepo.Create(ctx, vehicle); err != nil {
		return nil, err
	}

	s.invalidateRoster(ctx)
	log.Printf("[FLEET] Registered vehicle=%s plate=%s", vehicle.ID, vehicle.PlateNumber)
	return vehicle, nil
}

// UpdateLocationRequest contains the parameters for a position report.
type UpdateLocationRequest struct {
	VehicleID string
	Lat       float64
	Lng       float64
}

// UpdateLocation stores a vehicle's position. An OFFLINE vehicle reporting a
// position comes back IDLE.
func (s *VehicleService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if req.VehicleID == "" {
		return ErrInvalidVehicleID
	}

	if !isValidLatitude(req.Lat) || !isValidLongitude(req.Lng) {
		return ErrInvalidLocation
	}

	vehicle, err := s.vehicleRepo.GetByID(ctx, req.VehicleID)
	if err != nil {
		return err
	}

	if err := s.locationStore.UpdateLocation(ctx, req.VehicleID, req.Lat, req.Lng); err != nil {
		return err
	}

	if vehicle.Status == domain.VehicleStatusOffline {
		if err := s.vehicleRepo.UpdateStatus(ctx, req.VehicleID, domain.VehicleStatusIdle); err != nil {
			return err
		}
		s.invalidateRoster(ctx)
	}

	return nil
}

// SetStatus records a status reported by the driver app. Going OFFLINE also
// removes the vehicle from the map.
func (s *VehicleService) SetStatus(ctx context.Context, vehicleID string, status domain.VehicleStatus) error {
	if vehicleID == "" {
		return ErrInvalidVehicleID
	}
	if strings.TrimSpace(string(status)) == "" {
		return &ValidationError{Fields: []string{"Status"}}
	}

	if err := s.vehicleRepo.UpdateStatus(ctx, vehicleID, status); err != nil {
		return err
	}

	if status == domain.VehicleStatusOffline {
		if err := s.locationStore.RemoveLocation(ctx, vehicleID); err != nil {
			return err
		}
	}

	s.invalidateRoster(ctx)
	return nil
}

// Get retrieves a roster entry.
func (s *VehicleService) Get(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	return s.vehicleRepo.GetByID(ctx, vehicleID)
}

func (s *VehicleService) invalidateRoster(ctx context.Context) {
	if s.rosterCache == nil {
		return
	}
	if err := s.rosterCache.InvalidateRoster(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[FLEET] Failed to invalidate roster cache: %v", err)
	}
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}
