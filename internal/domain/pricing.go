package domain

import "errors"

// ErrNegativeRate is returned when a pricing rate is below zero.
var ErrNegativeRate = errors.New("pricing rates must be non-negative")

// PricingConfig holds the fare rates set on the settings page.
type PricingConfig struct {
	BaseFare       int
	PerKm          int
	PerMinute      int
	NightSurcharge int // Reserved: carried through but not applied to estimates
}

// DefaultPricingConfig returns the rates the console ships with.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		BaseFare:       100,
		PerKm:          20,
		PerMinute:      5,
		NightSurcharge: 50,
	}
}

// Validate checks that every rate is non-negative.
func (c PricingConfig) Validate() error {
	if c.BaseFare < 0 || c.PerKm < 0 || c.PerMinute < 0 || c.NightSurcharge < 0 {
		return ErrNegativeRate
	}
	return nil
}

// DistanceModel parameterizes the placeholder distance derivation.
type DistanceModel struct {
	Divisor     int     // seed is reduced modulo Divisor
	MinDistance int     // km added to every trip
	SpeedFactor float64 // minutes per km
}

// Surface identifies which screen a quote is requested from.
type Surface string

const (
	SurfaceIntake  Surface = "intake"
	SurfaceConsole Surface = "console"
)

// IntakeDistanceModel is used by the client booking screen.
func IntakeDistanceModel() DistanceModel {
	return DistanceModel{Divisor: 20, MinDistance: 3, SpeedFactor: 1.8}
}

// ConsoleDistanceModel is used by the dispatch console's manual order form.
func ConsoleDistanceModel() DistanceModel {
	return DistanceModel{Divisor: 15, MinDistance: 5, SpeedFactor: 1.5}
}

// DistanceModels holds the model used by each surface.
type DistanceModels struct {
	Intake  DistanceModel
	Console DistanceModel
}

// DefaultDistanceModels returns the built-in intake and console models.
func DefaultDistanceModels() DistanceModels {
	return DistanceModels{Intake: IntakeDistanceModel(), Console: ConsoleDistanceModel()}
}

// For returns the model for a surface. Unknown surfaces use the intake model.
func (m DistanceModels) For(surface Surface) DistanceModel {
	if surface == SurfaceConsole {
		return m.Console
	}
	return m.Intake
}

// Route is a distance/duration pair between two addresses.
type Route struct {
	Distance        int // km
	DurationMinutes int
}

// Estimate is a priced route.
type Estimate struct {
	Distance        int
	DurationMinutes int
	Price           int
}
