package service

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

// SnapshotApplier consumes fleet snapshots.
type SnapshotApplier interface {
	Apply(ctx context.Context, snap domain.Snapshot) (*ReconcileResult, error)
}

// FleetFeed builds fleet snapshots from the vehicle roster and the live
// positions, and hands them to the tracker on every tick.
type FleetFeed struct {
	vehicleRepo   repository.VehicleRepository
	locationStore redis.LocationStoreInterface
	rosterCache   redis.RosterCacheInterface
	tracker       SnapshotApplier
	seq           atomic.Uint64
	now           func() time.Time
}

// NewFleetFeed creates a new FleetFeed. rosterCache may be nil.
func NewFleetFeed(
	vehicleRepo repository.VehicleRepository,
	locationStore redis.LocationStoreInterface,
	rosterCache redis.RosterCacheInterface,
	tracker SnapshotApplier,
) *FleetFeed {
	return &FleetFeed{
		vehicleRepo:   vehicleRepo,
		locationStore: locationStore,
		rosterCache:   rosterCache,
		tracker:       tracker,
		now:           time.Now,
	}
}

// Snapshot reads the current fleet. Vehicles that never reported a position
// are left out since they cannot be placed on the map.
func (f *FleetFeed) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	roster, err := f.loadRoster(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	ids := make([]string, len(roster))
	for i, v := range roster {
		ids[i] = v.ID
	}

	locations, err := f.locationStore.GetLocations(ctx, ids)
	if err != nil {
		return domain.Snapshot{}, err
	}

	vehicles := make([]domain.Vehicle, 0, len(roster))
	for _, v := range roster {
		loc, ok := locations[v.ID]
		if !ok {
			continue
		}
		v.Location = domain.Location{Lat: loc.Lat, Lng: loc.Lng}
		vehicles = append(vehicles, *v)
	}

	return domain.Snapshot{
		Seq:        f.seq.Add(1),
		Vehicles:   vehicles,
		ObservedAt: f.now(),
	}, nil
}

// Tick builds one snapshot and applies it.
func (f *FleetFeed) Tick(ctx context.Context) (*ReconcileResult, error) {
	snap, err := f.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return f.tracker.Apply(ctx, snap)
}

// Run ticks every interval until ctx is done.
func (f *FleetFeed) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[FLEET] Feed started, interval=%s", interval)
	for {
		if result, err := f.Tick(ctx); err != nil {
			log.Printf("[FLEET] Tick failed: %v", err)
		} else if len(result.Created)+len(result.Removed) > 0 {
			log.Printf("[FLEET] seq=%d created=%d updated=%d removed=%d",
				result.Seq, len(result.Created), len(result.Updated), len(result.Removed))
		}

		select {
		case <-ctx.Done():
			log.Printf("[FLEET] Feed stopped")
			return
		case <-ticker.C:
		}
	}
}

// loadRoster reads the roster from cache, falling back to the repository.
func (f *FleetFeed) loadRoster(ctx context.Context) ([]*domain.Vehicle, error) {
	if f.rosterCache != nil {
		cached, err := f.rosterCache.GetRoster(ctx)
		if err == nil && cached != nil {
			return fromCachedRoster(cached), nil
		}
	}

	roster, err := f.vehicleRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if f.rosterCache != nil {
		if err := f.rosterCache.SetRoster(ctx, toCachedRoster(roster)); err != nil {
			log.Printf("[FLEET] Failed to cache roster: %v", err)
		}
	}
	return roster, nil
}

func toCachedRoster(roster []*domain.Vehicle) []redis.CachedVehicle {
	cached := make([]redis.CachedVehicle, len(roster))
	for i, v := range roster {
		cached[i] = redis.CachedVehicle{
			ID:            v.ID,
			PlateNumber:   v.PlateNumber,
			DriverName:    v.DriverName,
			Type:          v.Type,
			WalletBalance: v.WalletBalance,
			Status:        string(v.Status),
		}
	}
	return cached
}

func fromCachedRoster(cached []redis.CachedVehicle) []*domain.Vehicle {
	roster := make([]*domain.Vehicle, len(cached))
	for i, c := range cached {
		roster[i] = &domain.Vehicle{
			ID:            c.ID,
			PlateNumber:   c.PlateNumber,
			DriverName:    c.DriverName,
			Type:          c.Type,
			WalletBalance: c.WalletBalance,
			Status:        domain.VehicleStatus(c.Status),
		}
	}
	return roster
}
