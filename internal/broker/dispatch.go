package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// ErrPublishNacked is returned when the broker refuses a dispatch request.
var ErrPublishNacked = errors.New("dispatch request nacked by broker")

// DispatchRequest is the message offered to drivers.
type DispatchRequest struct {
	OrderID     string    `json:"order_id"`
	Pickup      string    `json:"pickup"`
	Destination string    `json:"destination"`
	Price       int       `json:"price"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DriverResponse is a driver's answer to a dispatch request.
type DriverResponse struct {
	OrderID   string `json:"order_id"`
	VehicleID string `json:"vehicle_id"`
	Accepted  bool   `json:"accepted"`
}

// RabbitBroadcaster publishes dispatch requests and treats the publisher
// confirm as the acknowledgment. Acceptances arrive later through
// AcceptanceConsumer.
type RabbitBroadcaster struct {
	mq       *RabbitMQ
	exchange string
}

// Ensure RabbitBroadcaster implements service.DispatchBroadcaster.
var _ service.DispatchBroadcaster = (*RabbitBroadcaster)(nil)

// NewRabbitBroadcaster creates a new RabbitBroadcaster.
func NewRabbitBroadcaster(mq *RabbitMQ, exchange string) *RabbitBroadcaster {
	return &RabbitBroadcaster{mq: mq, exchange: exchange}
}

// Broadcast publishes the order and waits for the broker's confirm.
func (b *RabbitBroadcaster) Broadcast(ctx context.Context, order *domain.Order) (*service.DispatchAck, error) {
	ch, err := b.mq.channel()
	if err != nil {
		return nil, err
	}

	body, err := encodeDispatchRequest(order)
	if err != nil {
		return nil, err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, b.exchange, RequestRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    order.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return nil, fmt.Errorf("publish dispatch request: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return nil, err
	}
	if !acked {
		return nil, ErrPublishNacked
	}

	log.Printf("[BROKER] Dispatch request for order=%s confirmed", order.ID)
	return &service.DispatchAck{OrderID: order.ID, AckedAt: time.Now()}, nil
}

func encodeDispatchRequest(order *domain.Order) ([]byte, error) {
	return json.Marshal(DispatchRequest{
		OrderID:     order.ID,
		Pickup:      order.Pickup,
		Destination: order.Destination,
		Price:       order.Price,
		Note:        order.Note,
		CreatedAt:   order.CreatedAt,
	})
}

// AckHandler applies driver acceptances.
type AckHandler interface {
	Acknowledge(ctx context.Context, ack service.DispatchAck) error
}

// AcceptanceConsumer reads driver responses and applies acceptances.
type AcceptanceConsumer struct {
	mq      *RabbitMQ
	handler AckHandler
	tag     string
}

// NewAcceptanceConsumer creates a new AcceptanceConsumer.
func NewAcceptanceConsumer(mq *RabbitMQ, handler AckHandler, tag string) *AcceptanceConsumer {
	return &AcceptanceConsumer{mq: mq, handler: handler, tag: tag}
}

// Run consumes until ctx is done, resubscribing after connection loss.
func (c *AcceptanceConsumer) Run(ctx context.Context) {
	for {
		if err := c.consume(ctx); err != nil {
			log.Printf("[BROKER] Consumer stopped: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
		}
	}
}

func (c *AcceptanceConsumer) consume(ctx context.Context) error {
	ch, err := c.mq.channel()
	if err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, ResponseQueue, c.tag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Printf("[BROKER] Consuming %s", ResponseQueue)
	for d := range deliveries {
		c.handle(ctx, d)
	}
	return ctx.Err()
}

// handle acks every delivery except those that failed because the order
// was momentarily locked; those are requeued.
func (c *AcceptanceConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var resp DriverResponse
	if err := json.Unmarshal(d.Body, &resp); err != nil {
		log.Printf("[BROKER] Dropping malformed driver response: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if !resp.Accepted {
		log.Printf("[BROKER] Vehicle %s declined order=%s", resp.VehicleID, resp.OrderID)
		_ = d.Ack(false)
		return
	}

	err := c.handler.Acknowledge(ctx, service.DispatchAck{
		OrderID:   resp.OrderID,
		VehicleID: resp.VehicleID,
		AckedAt:   time.Now(),
	})
	if errors.Is(err, service.ErrOrderBusy) {
		_ = d.Nack(false, true)
		return
	}
	if err != nil && !errors.Is(err, service.ErrInvalidTransition) {
		log.Printf("[BROKER] Failed to apply acceptance for order=%s: %v", resp.OrderID, err)
	}
	_ = d.Ack(false)
}
