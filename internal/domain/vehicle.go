package domain

import "time"

// VehicleStatus is reported by the fleet feed. Only IDLE versus anything else
// matters to dispatch; other values are passed through untouched.
type VehicleStatus string

const (
	VehicleStatusIdle    VehicleStatus = "IDLE"
	VehicleStatusBusy    VehicleStatus = "BUSY"
	VehicleStatusOffline VehicleStatus = "OFFLINE"
)

// Location is a WGS84 position.
type Location struct {
	Lat float64
	Lng float64
}

// Vehicle represents a fleet vehicle as last reported by the feed.
type Vehicle struct {
	ID            string
	PlateNumber   string
	DriverName    string
	Type          string
	WalletBalance int
	Status        VehicleStatus
	Location      Location
}

// IsIdle reports whether the vehicle is free to take an order.
func (v Vehicle) IsIdle() bool {
	return v.Status == VehicleStatusIdle
}

// Snapshot is a complete listing of the fleet at one instant. It replaces
// any earlier snapshot entirely.
type Snapshot struct {
	Seq        uint64 // 0 means the producer does not sequence snapshots
	Vehicles   []Vehicle
	ObservedAt time.Time
}
