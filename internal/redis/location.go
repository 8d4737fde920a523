package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const vehicleLocationKey = "vehicles:locations"

// VehicleLocation represents a vehicle's last reported position.
type VehicleLocation struct {
	VehicleID string
	Lat       float64
	Lng       float64
}

// LocationStore handles vehicle position operations in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a vehicle's position using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, vehicleID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, vehicleLocationKey, &redis.GeoLocation{
		Name:      vehicleID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// GetLocations returns the positions of the given vehicles. Vehicles that
// never reported a position are absent from the result.
func (s *LocationStore) GetLocations(ctx context.Context, vehicleIDs []string) (map[string]VehicleLocation, error) {
	locations := make(map[string]VehicleLocation, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return locations, nil
	}

	positions, err := s.client.GeoPos(ctx, vehicleLocationKey, vehicleIDs...).Result()
	if err != nil {
		return nil, err
	}

	for i, pos := range positions {
		if pos == nil {
			continue
		}
		locations[vehicleIDs[i]] = VehicleLocation{
			VehicleID: vehicleIDs[i],
			Lat:       pos.Latitude,
			Lng:       pos.Longitude,
		}
	}

	return locations, nil
}

// FindNearbyVehicles returns vehicles within the given radius (in kilometers), closest first.
func (s *LocationStore) FindNearbyVehicles(ctx context.Context, lat, lng, radiusKm float64) ([]VehicleLocation, error) {
	results, err := s.client.GeoRadius(ctx, vehicleLocationKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]VehicleLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, VehicleLocation{
			VehicleID: r.Name,
			Lat:       r.Latitude,
			Lng:       r.Longitude,
		})
	}

	return locations, nil
}

// RemoveLocation removes a vehicle from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, vehicleID string) error {
	return s.client.ZRem(ctx, vehicleLocationKey, vehicleID).Err()
}
