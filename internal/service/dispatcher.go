package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dispatch/internal/domain"
)

// DispatchAck is a driver-side acknowledgment of a broadcast. VehicleID is
// empty when the channel only confirms delivery.
type DispatchAck struct {
	OrderID   string
	VehicleID string
	AckedAt   time.Time
}

// DispatchBroadcaster offers an order to drivers and waits for the channel's
// acknowledgment. It must honor ctx cancellation.
type DispatchBroadcaster interface {
	Broadcast(ctx context.Context, order *domain.Order) (*DispatchAck, error)
}

// VehicleAssigner applies a driver acceptance to an order.
type VehicleAssigner interface {
	AssignVehicle(ctx context.Context, orderID, vehicleID string) (*domain.Order, error)
}

// DispatchPolicy controls broadcast retries.
type DispatchPolicy struct {
	AckTimeout     time.Duration // Per attempt; 0 means no timeout
	MaxAttempts    int           // 0 means retry until cancelled
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Dispatcher runs one broadcast per DISPATCHING order in the background.
// Each broadcast can be cancelled on its own or all together on Shutdown.
type Dispatcher struct {
	broadcaster DispatchBroadcaster
	assigner    VehicleAssigner
	policy      DispatchPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	closed   bool
}

// Ensure Dispatcher implements OrderDispatcher.
var _ OrderDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(broadcaster DispatchBroadcaster, assigner VehicleAssigner, policy DispatchPolicy) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		broadcaster: broadcaster,
		assigner:    assigner,
		policy:      policy,
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(map[string]context.CancelFunc),
	}
}

// Start begins broadcasting order. A second Start for an order whose
// broadcast is still running is ignored.
func (d *Dispatcher) Start(order *domain.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		log.Printf("[DISPATCH] Dispatcher closed, not broadcasting order=%s", order.ID)
		return
	}
	if _, running := d.inflight[order.ID]; running {
		return
	}

	ctx, cancel := context.WithCancel(d.ctx)
	d.inflight[order.ID] = cancel
	d.wg.Add(1)

	snapshot := *order
	go d.run(ctx, &snapshot)
}

// Cancel stops the broadcast for orderID, if one is running.
func (d *Dispatcher) Cancel(orderID string) {
	d.mu.Lock()
	cancel, ok := d.inflight[orderID]
	delete(d.inflight, orderID)
	d.mu.Unlock()

	if ok {
		cancel()
	}
}

// InFlight reports whether a broadcast for orderID is running.
func (d *Dispatcher) InFlight(orderID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.inflight[orderID]
	return ok
}

// Acknowledge applies a driver acceptance. Acceptances for orders that are no
// longer DISPATCHING are discarded.
func (d *Dispatcher) Acknowledge(ctx context.Context, ack DispatchAck) error {
	order, err := d.assigner.AssignVehicle(ctx, ack.OrderID, ack.VehicleID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Printf("[DISPATCH] discarding stale acknowledgment order=%s vehicle=%s: %v", ack.OrderID, ack.VehicleID, err)
		} else {
			log.Printf("[DISPATCH] Failed to apply acknowledgment order=%s vehicle=%s: %v", ack.OrderID, ack.VehicleID, err)
		}
		return err
	}

	log.Printf("[DISPATCH] order=%s assigned to vehicle=%s", order.ID, order.VehicleID)
	return nil
}

// Shutdown cancels every running broadcast and waits for them to return.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, order *domain.Order) {
	defer d.wg.Done()
	defer d.finish(ctx, order.ID)

	var ack *DispatchAck
	attempt := 0
	broadcast := func() error {
		attempt++
		attemptCtx, cancel := d.attemptContext(ctx)
		defer cancel()

		result, err := d.broadcaster.Broadcast(attemptCtx, order)
		if err != nil {
			log.Printf("[DISPATCH] Broadcast attempt %d for order=%s failed: %v", attempt, order.ID, err)
			return err
		}
		ack = result
		return nil
	}

	err := backoff.Retry(broadcast, backoff.WithContext(d.retryPolicy(), ctx))
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("[DISPATCH] Broadcast for order=%s cancelled", order.ID)
		} else {
			log.Printf("[DISPATCH] Giving up on order=%s after %d attempts: %v", order.ID, attempt, err)
		}
		return
	}

	if ack == nil || ack.VehicleID == "" {
		log.Printf("[DISPATCH] order=%s delivered to drivers, awaiting acceptance", order.ID)
		return
	}
	if ack.OrderID == "" {
		ack.OrderID = order.ID
	}

	d.applyAcceptance(*ack)
}

// applyAcceptance assigns the accepting vehicle, retrying while the order is
// locked by another transition. It runs on the dispatcher context since
// AssignVehicle cancels the broadcast that produced ack.
func (d *Dispatcher) applyAcceptance(ack DispatchAck) {
	apply := func() error {
		err := d.Acknowledge(d.ctx, ack)
		if err == nil || errors.Is(err, ErrOrderBusy) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(apply, backoff.WithContext(d.retryPolicy(), d.ctx))
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		log.Printf("[DISPATCH] Dropping acceptance order=%s vehicle=%s, order stays DISPATCHING: %v",
			ack.OrderID, ack.VehicleID, err)
	}
}

// finish forgets a broadcast that ended on its own.
func (d *Dispatcher) finish(ctx context.Context, orderID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cancel, ok := d.inflight[orderID]; ok && ctx.Err() == nil {
		cancel()
		delete(d.inflight, orderID)
	}
}

func (d *Dispatcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.policy.AckTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.policy.AckTimeout)
}

func (d *Dispatcher) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if d.policy.InitialBackoff > 0 {
		b.InitialInterval = d.policy.InitialBackoff
	}
	if d.policy.MaxBackoff > 0 {
		b.MaxInterval = d.policy.MaxBackoff
	}
	b.MaxElapsedTime = 0

	if d.policy.MaxAttempts > 0 {
		return backoff.WithMaxRetries(b, uint64(d.policy.MaxAttempts-1))
	}
	return b
}
