// Package broker connects the dispatcher to drivers through RabbitMQ.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dispatch/internal/config"
)

const (
	reconnectInterval = 10 * time.Second

	// RequestRoutingKey carries dispatch requests to drivers.
	RequestRoutingKey = "dispatch.request"
	// ResponseQueue receives driver acceptances.
	ResponseQueue = "driver_responses"
	// ResponseRoutingKey binds ResponseQueue to the exchange.
	ResponseRoutingKey = "driver.response.*"
)

// ErrConnectionClosed is returned while the broker connection is down.
var ErrConnectionClosed = errors.New("rabbitmq connection is closed")

// RabbitMQ holds a confirm-mode channel and reconnects in the background
// when the connection drops.
type RabbitMQ struct {
	ctx          context.Context
	cfg          config.RabbitMQConfig
	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
}

// NewRabbitMQ connects and declares the dispatch topology.
func NewRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	r := &RabbitMQ{ctx: ctx, cfg: cfg}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return r, nil
}

// IsAlive reports whether both connection and channel are open.
func (r *RabbitMQ) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return false
	}
	if r.ch == nil || r.ch.IsClosed() {
		return false
	}
	return true
}

// Close closes the channel and the connection.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// channel returns the open channel, triggering a reconnect when it is not.
func (r *RabbitMQ) channel() (*amqp.Channel, error) {
	if !r.IsAlive() {
		go r.reconnect()
		return nil, ErrConnectionClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch, nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		r.cfg.User,
		r.cfg.Password,
		r.cfg.Host,
		r.cfg.Port,
		r.cfg.VHost,
	))
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return err
	}

	if err := declareTopology(ch, r.cfg.Exchange); err != nil {
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func declareTopology(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(ResponseQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", ResponseQueue, err)
	}
	if err := ch.QueueBind(ResponseQueue, ResponseRoutingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", ResponseQueue, err)
	}
	return nil
}

func (r *RabbitMQ) reconnect() {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(reconnectInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := r.connect(); err != nil {
				log.Printf("[BROKER] Reconnect failed: %v", err)
				continue
			}
			log.Printf("[BROKER] Reconnected to rabbitmq")
			return
		case <-r.ctx.Done():
			return
		}
	}
}
