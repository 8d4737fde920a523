package redis

import (
	"context"
	"time"
)

// LocationStoreInterface defines the interface for vehicle position operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, vehicleID string, lat, lng float64) error
	GetLocations(ctx context.Context, vehicleIDs []string) (map[string]VehicleLocation, error)
	FindNearbyVehicles(ctx context.Context, lat, lng, radiusKm float64) ([]VehicleLocation, error)
	RemoveLocation(ctx context.Context, vehicleID string) error
}

// LockStoreInterface defines the interface for per-order locking.
type LockStoreInterface interface {
	AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseOrderLock(ctx context.Context, orderID, token string) error
}

// RosterCacheInterface defines the interface for the cached fleet roster.
type RosterCacheInterface interface {
	GetRoster(ctx context.Context) ([]CachedVehicle, error)
	SetRoster(ctx context.Context, roster []CachedVehicle) error
	InvalidateRoster(ctx context.Context) error
}

// PricingCacheInterface defines the interface for shared pricing settings.
type PricingCacheInterface interface {
	GetPricing(ctx context.Context) (*CachedPricing, error)
	SetPricing(ctx context.Context, pricing *CachedPricing) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ RosterCacheInterface   = (*CacheStore)(nil)
	_ PricingCacheInterface  = (*CacheStore)(nil)
)
