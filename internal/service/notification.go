package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"

	"dispatch/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationOrderCreated    NotificationType = "ORDER_CREATED"
	NotificationOrderDispatched NotificationType = "ORDER_DISPATCHED"
	NotificationVehicleAssigned NotificationType = "VEHICLE_ASSIGNED"
	NotificationTripStarted     NotificationType = "TRIP_STARTED"
	NotificationTripCompleted   NotificationType = "TRIP_COMPLETED"
	NotificationOrderCancelled  NotificationType = "ORDER_CANCELLED"
)

// Notification represents a lifecycle notification for the client of an order.
type Notification struct {
	ID          string
	Type        NotificationType
	OrderID     string
	RecipientID string // Client phone number
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// NotificationService records order lifecycle notifications. Each one is
// logged and, when New Relic is enabled, recorded as an OrderLifecycle event.
type NotificationService struct {
	app *newrelic.Application
}

// NewNotificationService creates a new NotificationService. app may be nil.
func NewNotificationService(app *newrelic.Application) *NotificationService {
	return &NotificationService{app: app}
}

// NotifyOrderCreated tells the client their request was received.
func (s *NotificationService) NotifyOrderCreated(ctx context.Context, order *domain.Order) error {
	return s.send(ctx, s.build(order, NotificationOrderCreated, "Order Received",
		fmt.Sprintf("Your ride from %s to %s is waiting for dispatch. Fare: %d", order.Pickup, order.Destination, order.Price),
		map[string]interface{}{"price": order.Price}))
}

// NotifyOrderDispatched tells the client drivers are being contacted.
func (s *NotificationService) NotifyOrderDispatched(ctx context.Context, order *domain.Order) error {
	return s.send(ctx, s.build(order, NotificationOrderDispatched, "Finding a Driver",
		"Your ride request has been sent to nearby drivers.", nil))
}

// NotifyVehicleAssigned tells the client which vehicle accepted.
func (s *NotificationService) NotifyVehicleAssigned(ctx context.Context, order *domain.Order) error {
	return s.send(ctx, s.build(order, NotificationVehicleAssigned, "Vehicle Assigned",
		fmt.Sprintf("Vehicle %s is on the way", order.VehicleID),
		map[string]interface{}{"vehicle_id": order.VehicleID}))
}

// NotifyTripStarted tells the client the trip has started.
func (s *NotificationService) NotifyTripStarted(ctx context.Context, order *domain.Order) error {
	return s.send(ctx, s.build(order, NotificationTripStarted, "Trip Started",
		"Your trip has started. Enjoy your ride!",
		map[string]interface{}{"vehicle_id": order.VehicleID}))
}

// NotifyTripCompleted tells the client the trip is over.
func (s *NotificationService) NotifyTripCompleted(ctx context.Context, order *domain.Order) error {
	return s.send(ctx, s.build(order, NotificationTripCompleted, "Trip Completed",
		fmt.Sprintf("You have arrived. Total fare: %d", order.Price),
		map[string]interface{}{"price": order.Price}))
}

// NotifyOrderCancelled tells the client the order was cancelled.
func (s *NotificationService) NotifyOrderCancelled(ctx context.Context, order *domain.Order) error {
	return s.send(ctx, s.build(order, NotificationOrderCancelled, "Order Cancelled",
		"Your ride request has been cancelled.", nil))
}

func (s *NotificationService) build(order *domain.Order, typ NotificationType, title, message string, data map[string]interface{}) Notification {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["order_id"] = order.ID
	data["status"] = string(order.Status)

	return Notification{
		ID:          uuid.New().String(),
		Type:        typ,
		OrderID:     order.ID,
		RecipientID: order.ClientPhone,
		Title:       title,
		Message:     message,
		Data:        data,
		CreatedAt:   time.Now(),
	}
}

// send delivers a notification. Delivery is log-only: there is no SMS or push channel.
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	log.Printf("[NOTIFICATION] Type=%s, Order=%s, Recipient=%s, Title=%s, Message=%s",
		notification.Type, notification.OrderID, notification.RecipientID, notification.Title, notification.Message)

	if s.app != nil {
		attrs := map[string]interface{}{
			"type":     string(notification.Type),
			"order_id": notification.OrderID,
		}
		for k, v := range notification.Data {
			attrs[k] = v
		}
		s.app.RecordCustomEvent("OrderLifecycle", attrs)
	}

	return nil
}
