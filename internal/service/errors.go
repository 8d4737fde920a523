package service

import (
	"errors"
	"fmt"
	"strings"

	"dispatch/internal/domain"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid order transition")

	// ErrOrderBusy is returned when another transition holds the order lock for too long.
	ErrOrderBusy = errors.New("order is being modified")

	// ErrInvalidOrderID is returned when order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrNoVehicleAvailable is returned when no idle vehicle accepts a dispatch.
	ErrNoVehicleAvailable = errors.New("no vehicle available")

	// ErrRenderingUnavailable is reported while the map renderer cannot draw markers.
	// Fleet data operations keep working.
	ErrRenderingUnavailable = errors.New("map rendering unavailable")

	// ErrStaleSnapshot is returned when a snapshot is older than the last applied one.
	ErrStaleSnapshot = errors.New("stale fleet snapshot")

	// ErrUnknownMarker is returned by a MarkerRenderer for a handle it does not hold.
	ErrUnknownMarker = errors.New("unknown marker handle")
)

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: missing or invalid %s", strings.Join(e.Fields, ", "))
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError describes a lifecycle edge the order cannot take.
type TransitionError struct {
	OrderID string
	From    domain.OrderStatus
	To      domain.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Is reports whether target is ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
