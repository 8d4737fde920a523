package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles roster and settings caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// RosterCacheTTL bounds how stale the roster used to build fleet snapshots can be.
const RosterCacheTTL = 30 * time.Second

const (
	rosterCacheKey  = "cache:fleet:roster"
	pricingCacheKey = "settings:pricing"
)

// CachedVehicle represents a cached roster entry.
type CachedVehicle struct {
	ID            string `json:"id"`
	PlateNumber   string `json:"plate_number"`
	DriverName    string `json:"driver_name"`
	Type          string `json:"type"`
	WalletBalance int    `json:"wallet_balance"`
	Status        string `json:"status"`
}

// CachedPricing represents the shared pricing settings.
type CachedPricing struct {
	BaseFare       int `json:"base_fare"`
	PerKm          int `json:"per_km"`
	PerMinute      int `json:"per_minute"`
	NightSurcharge int `json:"night_surcharge"`
}

// GetRoster retrieves the cached roster. Returns nil, nil on a cache miss.
func (s *CacheStore) GetRoster(ctx context.Context) ([]CachedVehicle, error) {
	data, err := s.client.Get(ctx, rosterCacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var roster []CachedVehicle
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// SetRoster stores the roster in cache.
func (s *CacheStore) SetRoster(ctx context.Context, roster []CachedVehicle) error {
	data, err := json.Marshal(roster)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rosterCacheKey, data, RosterCacheTTL).Err()
}

// InvalidateRoster drops the cached roster so the next tick reloads it.
func (s *CacheStore) InvalidateRoster(ctx context.Context) error {
	return s.client.Del(ctx, rosterCacheKey).Err()
}

// GetPricing retrieves the shared pricing settings. Returns nil, nil when none were saved.
func (s *CacheStore) GetPricing(ctx context.Context) (*CachedPricing, error) {
	data, err := s.client.Get(ctx, pricingCacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var pricing CachedPricing
	if err := json.Unmarshal(data, &pricing); err != nil {
		return nil, err
	}
	return &pricing, nil
}

// SetPricing stores the pricing settings without expiry.
func (s *CacheStore) SetPricing(ctx context.Context, pricing *CachedPricing) error {
	data, err := json.Marshal(pricing)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, pricingCacheKey, data, 0).Err()
}
