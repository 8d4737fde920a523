package service

import (
	"context"
	"math"
	"unicode/utf8"

	"dispatch/internal/domain"
)

// RouteEstimator derives distance and duration between two addresses.
// A geocoding or routing backend replaces LengthSeedRouter behind this interface.
type RouteEstimator interface {
	Route(ctx context.Context, pickup, destination string) (domain.Route, error)
}

// LengthSeedRouter derives a route from the character lengths of the two
// addresses. It does not look at the addresses' meaning.
type LengthSeedRouter struct {
	Model domain.DistanceModel
}

// Ensure LengthSeedRouter implements RouteEstimator.
var _ RouteEstimator = LengthSeedRouter{}

// Route never fails.
func (r LengthSeedRouter) Route(ctx context.Context, pickup, destination string) (domain.Route, error) {
	return lengthSeedRoute(pickup, destination, r.Model), nil
}

func lengthSeedRoute(pickup, destination string, model domain.DistanceModel) domain.Route {
	divisor := model.Divisor
	if divisor <= 0 {
		divisor = 1
	}

	seed := utf8.RuneCountInString(pickup) + utf8.RuneCountInString(destination)
	distance := seed%divisor + model.MinDistance
	duration := int(math.Floor(float64(distance) * model.SpeedFactor))

	return domain.Route{
		Distance:        distance,
		DurationMinutes: duration,
	}
}

// PricingEstimator turns routes into fares.
type PricingEstimator struct{}

// NewPricingEstimator creates a new PricingEstimator.
func NewPricingEstimator() *PricingEstimator {
	return &PricingEstimator{}
}

// Estimate prices the trip between two full addresses with the length-seed
// route. It is deterministic and does no I/O.
func (e *PricingEstimator) Estimate(pickup, destination string, cfg domain.PricingConfig, model domain.DistanceModel) domain.Estimate {
	return e.Price(lengthSeedRoute(pickup, destination, model), cfg)
}

// Quote prices the route reported by router.
func (e *PricingEstimator) Quote(ctx context.Context, router RouteEstimator, pickup, destination string, cfg domain.PricingConfig) (domain.Estimate, error) {
	route, err := router.Route(ctx, pickup, destination)
	if err != nil {
		return domain.Estimate{}, err
	}
	return e.Price(route, cfg), nil
}

// Price applies the fare rates to a route. NightSurcharge is not applied.
func (e *PricingEstimator) Price(route domain.Route, cfg domain.PricingConfig) domain.Estimate {
	return domain.Estimate{
		Distance:        route.Distance,
		DurationMinutes: route.DurationMinutes,
		Price:           cfg.BaseFare + route.Distance*cfg.PerKm + route.DurationMinutes*cfg.PerMinute,
	}
}
