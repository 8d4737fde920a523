package service

import (
	"context"
	"log"
	"sync/atomic"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
)

// PricingSettings holds the current fare rates. Readers always see a whole
// config; Replace swaps it in one step.
type PricingSettings struct {
	current atomic.Pointer[domain.PricingConfig]
	cache   redis.PricingCacheInterface
}

// NewPricingSettings creates settings seeded with initial, which must pass
// Validate. cache may be nil.
func NewPricingSettings(initial domain.PricingConfig, cache redis.PricingCacheInterface) (*PricingSettings, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}

	s := &PricingSettings{cache: cache}
	cfg := initial
	s.current.Store(&cfg)
	return s, nil
}

// Current returns the rates in effect.
func (s *PricingSettings) Current() domain.PricingConfig {
	return *s.current.Load()
}

// Replace validates cfg and makes it the rates in effect. The shared cache is
// written first so other replicas pick the change up on their next Load.
func (s *PricingSettings) Replace(ctx context.Context, cfg domain.PricingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.SetPricing(ctx, toCachedPricing(cfg)); err != nil {
			return err
		}
	}

	s.current.Store(&cfg)
	log.Printf("[PRICING] Rates replaced: base=%d per_km=%d per_minute=%d night=%d",
		cfg.BaseFare, cfg.PerKm, cfg.PerMinute, cfg.NightSurcharge)
	return nil
}

// Load adopts rates saved in the shared cache, if any. A cache miss keeps
// the current rates.
func (s *PricingSettings) Load(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	cached, err := s.cache.GetPricing(ctx)
	if err != nil {
		return err
	}
	if cached == nil {
		return nil
	}

	cfg := domain.PricingConfig{
		BaseFare:       cached.BaseFare,
		PerKm:          cached.PerKm,
		PerMinute:      cached.PerMinute,
		NightSurcharge: cached.NightSurcharge,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(&cfg)
	return nil
}

func toCachedPricing(cfg domain.PricingConfig) *redis.CachedPricing {
	return &redis.CachedPricing{
		BaseFare:       cfg.BaseFare,
		PerKm:          cfg.PerKm,
		PerMinute:      cfg.PerMinute,
		NightSurcharge: cfg.NightSurcharge,
	}
}
