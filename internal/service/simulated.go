package service

import (
	"context"
	"log"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
)

// SimulatedBroadcaster stands in for the driver app: after a fixed delay the
// closest idle vehicle around the origin accepts the order.
type SimulatedBroadcaster struct {
	locationStore redis.LocationStoreInterface
	fleet         FleetReader
	origin        domain.Location
	radiusKm      float64
	delay         time.Duration
}

// Ensure SimulatedBroadcaster implements DispatchBroadcaster.
var _ DispatchBroadcaster = (*SimulatedBroadcaster)(nil)

// NewSimulatedBroadcaster creates a new SimulatedBroadcaster.
func NewSimulatedBroadcaster(
	locationStore redis.LocationStoreInterface,
	fleet FleetReader,
	origin domain.Location,
	radiusKm float64,
	delay time.Duration,
) *SimulatedBroadcaster {
	return &SimulatedBroadcaster{
		locationStore: locationStore,
		fleet:         fleet,
		origin:        origin,
		radiusKm:      radiusKm,
		delay:         delay,
	}
}

// Broadcast waits for the acceptance delay, then picks a vehicle.
func (b *SimulatedBroadcaster) Broadcast(ctx context.Context, order *domain.Order) (*DispatchAck, error) {
	if b.delay > 0 {
		timer := time.NewTimer(b.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	vehicleID, err := b.pickVehicle(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("[DISPATCH] Simulated acceptance: order=%s vehicle=%s", order.ID, vehicleID)
	return &DispatchAck{
		OrderID:   order.ID,
		VehicleID: vehicleID,
		AckedAt:   time.Now(),
	}, nil
}

// pickVehicle returns the nearest idle vehicle, or any idle vehicle of the
// fleet when none is within the search radius.
func (b *SimulatedBroadcaster) pickVehicle(ctx context.Context) (string, error) {
	idle := make(map[string]bool)
	var fallback string
	for _, v := range b.fleet.Search("") {
		if v.IsIdle() {
			idle[v.ID] = true
			if fallback == "" {
				fallback = v.ID
			}
		}
	}
	if len(idle) == 0 {
		return "", ErrNoVehicleAvailable
	}

	// Closest first.
	nearby, err := b.locationStore.FindNearbyVehicles(ctx, b.origin.Lat, b.origin.Lng, b.radiusKm)
	if err != nil {
		return "", err
	}
	for _, loc := range nearby {
		if idle[loc.VehicleID] {
			return loc.VehicleID, nil
		}
	}

	return fallback, nil
}
