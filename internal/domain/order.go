package domain

import "time"

// OrderStatus represents the current status of an order.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "PENDING"
	OrderStatusDispatching OrderStatus = "DISPATCHING"
	OrderStatusAssigned    OrderStatus = "ASSIGNED"
	OrderStatusInTransit   OrderStatus = "IN_TRANSIT"
	OrderStatusCompleted   OrderStatus = "COMPLETED"
	OrderStatusCancelled   OrderStatus = "CANCELLED"
)

// DefaultOrderNote is the note pre-filled on orders created from the dispatch console.
const DefaultOrderNote = "【車上禁菸、禁檳榔】"

// orderTransitions lists the only edges of the order state machine.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:     {OrderStatusDispatching, OrderStatusCancelled},
	OrderStatusDispatching: {OrderStatusAssigned},
	OrderStatusAssigned:    {OrderStatusInTransit},
	OrderStatusInTransit:   {OrderStatusCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusDispatching, OrderStatusAssigned,
		OrderStatusInTransit, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order represents a ride request placed by a client.
type Order struct {
	ID          string
	ClientName  string
	ClientPhone string
	Pickup      string // Full address, frozen at submission
	Destination string // Full address, frozen at submission
	Note        string
	Price       int // Fixed at creation
	Status      OrderStatus
	VehicleID   string // Empty until a vehicle is assigned
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
