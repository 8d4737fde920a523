package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

const lockRetryInterval = 20 * time.Millisecond

// OrderDispatcher broadcasts dispatched orders to drivers.
type OrderDispatcher interface {
	Start(order *domain.Order)
	Cancel(orderID string)
}

// LockPolicy bounds per-order locking.
type LockPolicy struct {
	TTL  time.Duration // Lock expiry if the holder dies
	Wait time.Duration // How long a transition waits for a held lock
}

// OrderService owns the order lifecycle.
type OrderService struct {
	orderRepo           repository.OrderRepository
	lockStore           redis.LockStoreInterface
	estimator           *PricingEstimator
	settings            *PricingSettings
	models              domain.DistanceModels
	notificationService *NotificationService
	dispatcher          OrderDispatcher
	lockPolicy          LockPolicy
	validate            *validator.Validate
	now                 func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	orderRepo repository.OrderRepository,
	lockStore redis.LockStoreInterface,
	estimator *PricingEstimator,
	settings *PricingSettings,
	models domain.DistanceModels,
	notificationService *NotificationService,
	lockPolicy LockPolicy,
) *OrderService {
	return &OrderService{
		orderRepo:           orderRepo,
		lockStore:           lockStore,
		estimator:           estimator,
		settings:            settings,
		models:              models,
		notificationService: notificationService,
		lockPolicy:          lockPolicy,
		validate:            validator.New(),
		now:                 time.Now,
	}
}

// SetDispatcher wires the broadcast collaborator. The dispatcher itself
// assigns vehicles through this service, so it is set after construction.
func (s *OrderService) SetDispatcher(dispatcher OrderDispatcher) {
	s.dispatcher = dispatcher
}

// QuoteRequest contains the addresses to price.
type QuoteRequest struct {
	Pickup      string `validate:"required"`
	Destination string `validate:"required"`
	Surface     domain.Surface
}

// CreateOrderRequest contains the parameters for creating an order.
type CreateOrderRequest struct {
	ClientName  string `validate:"required"`
	ClientPhone string `validate:"required"`
	Pickup      string `validate:"required"`
	Destination string `validate:"required"`
	Note        string
	Price       *int `validate:"omitempty,min=0"` // nil: use the estimate
	Surface     domain.Surface
}

// Quote estimates the fare between two full addresses with the current rates
// and the distance model of the requesting surface.
func (s *OrderService) Quote(ctx context.Context, req QuoteRequest) (domain.Estimate, error) {
	req.Pickup = strings.TrimSpace(req.Pickup)
	req.Destination = strings.TrimSpace(req.Destination)
	if err := s.validateStruct(req); err != nil {
		return domain.Estimate{}, err
	}

	return s.estimator.Quote(ctx, s.routerFor(req.Surface), req.Pickup, req.Destination, s.settings.Current())
}

// Create stores a new PENDING order. Its price is frozen here.
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	req.Pickup = strings.TrimSpace(req.Pickup)
	req.Destination = strings.TrimSpace(req.Destination)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	var price int
	if req.Price != nil {
		price = *req.Price
	} else {
		estimate, err := s.estimator.Quote(ctx, s.routerFor(req.Surface), req.Pickup, req.Destination, s.settings.Current())
		if err != nil {
			return nil, err
		}
		price = estimate.Price
	}

	note := req.Note
	if note == "" {
		note = domain.DefaultOrderNote
	}

	now := s.now()
	order := &domain.Order{
		ID:          uuid.New().String(),
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		Pickup:      req.Pickup,
		Destination: req.Destination,
		Note:        note,
		Price:       price,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	log.Printf("[ORDER] Created order=%s price=%d", order.ID, order.Price)
	if s.notificationService != nil {
		_ = s.notificationService.NotifyOrderCreated(ctx, order)
	}

	return order, nil
}

// Dispatch moves a PENDING order to DISPATCHING and starts the broadcast.
func (s *OrderService) Dispatch(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.OrderStatusDispatching, nil)
	if err != nil {
		return nil, err
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyOrderDispatched(ctx, order)
	}
	if s.dispatcher != nil {
		s.dispatcher.Start(order)
	}

	return order, nil
}

// Cancel moves a PENDING order to CANCELLED.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.OrderStatusCancelled, nil)
	if err != nil {
		return nil, err
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyOrderCancelled(ctx, order)
	}

	return order, nil
}

// AssignVehicle records the vehicle that accepted a DISPATCHING order.
func (s *OrderService) AssignVehicle(ctx context.Context, orderID, vehicleID string) (*domain.Order, error) {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}

	order, err := s.transition(ctx, orderID, domain.OrderStatusAssigned, func(o *domain.Order) {
		o.VehicleID = vehicleID
	})
	if err != nil {
		return nil, err
	}

	// An acceptance may arrive through another channel than the running broadcast.
	if s.dispatcher != nil {
		s.dispatcher.Cancel(orderID)
	}
	if s.notificationService != nil {
		_ = s.notificationService.NotifyVehicleAssigned(ctx, order)
	}

	return order, nil
}

// StartTrip moves an ASSIGNED order to IN_TRANSIT.
func (s *OrderService) StartTrip(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.OrderStatusInTransit, nil)
	if err != nil {
		return nil, err
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyTripStarted(ctx, order)
	}

	return order, nil
}

// CompleteTrip moves an IN_TRANSIT order to COMPLETED.
func (s *OrderService) CompleteTrip(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.transition(ctx, orderID, domain.OrderStatusCompleted, nil)
	if err != nil {
		return nil, err
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyTripCompleted(ctx, order)
	}

	return order, nil
}

// Get retrieves an order by ID.
func (s *OrderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}
	return s.orderRepo.GetByID(ctx, orderID)
}

// List returns the order catalog, newest first.
func (s *OrderService) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	return s.orderRepo.List(ctx, filter)
}

// transition applies one lifecycle edge under the order lock. The order is
// left untouched when the edge is not allowed.
func (s *OrderService) transition(ctx context.Context, orderID string, to domain.OrderStatus, mutate func(*domain.Order)) (*domain.Order, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	release, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !domain.CanTransition(from, to) {
		return nil, &TransitionError{OrderID: orderID, From: from, To: to}
	}

	order.Status = to
	order.UpdatedAt = s.now()
	if mutate != nil {
		mutate(order)
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, err
	}

	log.Printf("[ORDER] order=%s %s -> %s", orderID, from, to)
	return order, nil
}

// lockOrder acquires the per-order lock, polling until the wait budget runs out.
func (s *OrderService) lockOrder(ctx context.Context, orderID string) (func(), error) {
	if s.lockStore == nil {
		return func() {}, nil
	}

	var token string
	acquire := func() error {
		held, locked, err := s.lockStore.AcquireOrderLock(ctx, orderID, s.lockPolicy.TTL)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !locked {
			return ErrOrderBusy
		}
		token = held
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockRetryInterval
	b.MaxInterval = 10 * lockRetryInterval
	b.MaxElapsedTime = s.lockPolicy.Wait

	var policy backoff.BackOff = b
	if s.lockPolicy.Wait <= 0 {
		policy = &backoff.StopBackOff{}
	}

	if err := backoff.Retry(acquire, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	return func() {
		// Release even when the caller's context is already done.
		if err := s.lockStore.ReleaseOrderLock(context.Background(), orderID, token); err != nil {
			log.Printf("[ORDER] Failed to release lock for order=%s: %v", orderID, err)
		}
	}, nil
}

func (s *OrderService) routerFor(surface domain.Surface) RouteEstimator {
	return LengthSeedRouter{Model: s.models.For(surface)}
}

func (s *OrderService) validateStruct(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}
