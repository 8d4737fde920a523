package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ──────────────────────────────────────────────
// 2. ORDER LIFECYCLE
// ──────────────────────────────────────────────

func newOrderService(orderRepo repository.OrderRepository, lockStore *MockLockStore) *service.OrderService {
	settings, err := service.NewPricingSettings(domain.PricingConfig{BaseFare: 100, PerKm: 20, PerMinute: 5, NightSurcharge: 50}, nil)
	if err != nil {
		panic(err)
	}
	return service.NewOrderService(
		orderRepo,
		lockStore,
		service.NewPricingEstimator(),
		settings,
		domain.DefaultDistanceModels(),
		nil,
		service.LockPolicy{TTL: time.Second, Wait: 200 * time.Millisecond},
	)
}

func validCreateRequest() service.CreateOrderRequest {
	return service.CreateOrderRequest{
		ClientName:  "Chen",
		ClientPhone: "0912345678",
		Pickup:      samplePickup,
		Destination: sampleDestination,
	}
}

func mustCreateOrder(t *testing.T, svc *service.OrderService) *domain.Order {
	t.Helper()
	order, err := svc.Create(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func TestOrderCreate_StartsPendingWithFrozenEstimate(t *testing.T) {
	t.Parallel()

	orderRepo := NewMockOrderRepository()
	svc := newOrderService(orderRepo, NewMockLockStore())

	order := mustCreateOrder(t, svc)

	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected status %s, got %s", domain.OrderStatusPending, order.Status)
	}
	if order.Price != 705 {
		t.Errorf("expected price 705, got %d", order.Price)
	}
	if order.VehicleID != "" {
		t.Errorf("expected no vehicle, got %s", order.VehicleID)
	}
	if order.Note != domain.DefaultOrderNote {
		t.Errorf("expected default note, got %q", order.Note)
	}
	if orderRepo.CountOrders() != 1 {
		t.Errorf("expected 1 stored order, got %d", orderRepo.CountOrders())
	}
}

func TestOrderCreate_ConsoleSurfaceUsesConsoleModel(t *testing.T) {
	t.Parallel()

	svc := newOrderService(NewMockOrderRepository(), NewMockLockStore())
	req := validCreateRequest()
	req.Surface = domain.SurfaceConsole

	order, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Price != 320 {
		t.Errorf("expected price 320, got %d", order.Price)
	}
}

func TestOrderCreate_MissingFieldsRejected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(*service.CreateOrderRequest)
		field  string
	}{
		{"missing client name", func(r *service.CreateOrderRequest) { r.ClientName = "" }, "ClientName"},
		{"blank client phone", func(r *service.CreateOrderRequest) { r.ClientPhone = "   " }, "ClientPhone"},
		{"missing pickup", func(r *service.CreateOrderRequest) { r.Pickup = "" }, "Pickup"},
		{"missing destination", func(r *service.CreateOrderRequest) { r.Destination = "" }, "Destination"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			orderRepo := NewMockOrderRepository()
			svc := newOrderService(orderRepo, NewMockLockStore())
			req := validCreateRequest()
			tc.mutate(&req)

			_, err := svc.Create(context.Background(), req)

			var validationErr *service.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(validationErr.Fields) != 1 || validationErr.Fields[0] != tc.field {
				t.Errorf("expected field %s, got %v", tc.field, validationErr.Fields)
			}
			if orderRepo.CountOrders() != 0 {
				t.Error("no order should be created")
			}
		})
	}
}

func TestOrderCreate_NegativePriceOverrideRejected(t *testing.T) {
	t.Parallel()

	svc := newOrderService(NewMockOrderRepository(), NewMockLockStore())
	req := validCreateRequest()
	price := -1
	req.Price = &price

	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, service.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestOrderLifecycle_HappyPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lockStore := NewMockLockStore()
	svc := newOrderService(NewMockOrderRepository(), lockStore)
	order := mustCreateOrder(t, svc)

	steps := []struct {
		name  string
		apply func() (*domain.Order, error)
		want  domain.OrderStatus
	}{
		{"dispatch", func() (*domain.Order, error) { return svc.Dispatch(ctx, order.ID) }, domain.OrderStatusDispatching},
		{"assign", func() (*domain.Order, error) { return svc.AssignVehicle(ctx, order.ID, "vehicle-1") }, domain.OrderStatusAssigned},
		{"start", func() (*domain.Order, error) { return svc.StartTrip(ctx, order.ID) }, domain.OrderStatusInTransit},
		{"complete", func() (*domain.Order, error) { return svc.CompleteTrip(ctx, order.ID) }, domain.OrderStatusCompleted},
	}

	for _, step := range steps {
		got, err := step.apply()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", step.name, err)
		}
		if got.Status != step.want {
			t.Fatalf("%s: expected status %s, got %s", step.name, step.want, got.Status)
		}
	}

	final, err := svc.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.VehicleID != "vehicle-1" {
		t.Errorf("expected vehicle-1, got %s", final.VehicleID)
	}
	if final.Price != order.Price {
		t.Errorf("price changed during lifecycle: %d -> %d", order.Price, final.Price)
	}
	if lockStore.IsLocked(order.ID) {
		t.Error("order lock must be released")
	}
}

func TestOrderLifecycle_CancelOnlyWhilePending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orderRepo := NewMockOrderRepository()
	svc := newOrderService(orderRepo, NewMockLockStore())

	pending := mustCreateOrder(t, svc)
	cancelled, err := svc.Cancel(ctx, pending.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	dispatched := mustCreateOrder(t, svc)
	if _, err := svc.Dispatch(ctx, dispatched.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Cancel(ctx, dispatched.ID)
	var transitionErr *service.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if transitionErr.From != domain.OrderStatusDispatching || transitionErr.To != domain.OrderStatusCancelled {
		t.Errorf("unexpected transition error: %+v", transitionErr)
	}
	if got := orderRepo.GetOrder(dispatched.ID); got.Status != domain.OrderStatusDispatching {
		t.Errorf("rejected cancel must leave the order DISPATCHING, got %s", got.Status)
	}
}

func TestOrderLifecycle_InvalidEdgesLeaveOrderUnchanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orderRepo := NewMockOrderRepository()
	svc := newOrderService(orderRepo, NewMockLockStore())
	order := mustCreateOrder(t, svc)
	updatesBefore := atomic.LoadInt32(&orderRepo.UpdateCallCount)

	attempts := map[string]func() (*domain.Order, error){
		"assign":   func() (*domain.Order, error) { return svc.AssignVehicle(ctx, order.ID, "vehicle-1") },
		"start":    func() (*domain.Order, error) { return svc.StartTrip(ctx, order.ID) },
		"complete": func() (*domain.Order, error) { return svc.CompleteTrip(ctx, order.ID) },
	}
	for name, attempt := range attempts {
		if _, err := attempt(); !errors.Is(err, service.ErrInvalidTransition) {
			t.Errorf("%s on PENDING: expected ErrInvalidTransition, got %v", name, err)
		}
	}

	if atomic.LoadInt32(&orderRepo.UpdateCallCount) != updatesBefore {
		t.Error("rejected transitions must not write the order")
	}
	stored := orderRepo.GetOrder(order.ID)
	if stored.Status != domain.OrderStatusPending || stored.VehicleID != "" {
		t.Errorf("order changed: %+v", stored)
	}
}

func TestOrderLifecycle_TerminalStatesHaveNoExit(t *testing.T) {
	t.Parallel()

	all := []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusDispatching, domain.OrderStatusAssigned,
		domain.OrderStatusInTransit, domain.OrderStatusCompleted, domain.OrderStatusCancelled,
	}
	for _, terminal := range []domain.OrderStatus{domain.OrderStatusCompleted, domain.OrderStatusCancelled} {
		if !terminal.IsTerminal() {
			t.Errorf("%s should be terminal", terminal)
		}
		for _, to := range all {
			if domain.CanTransition(terminal, to) {
				t.Errorf("%s -> %s should not be allowed", terminal, to)
			}
		}
	}
}

func TestOrderLifecycle_AssignRequiresVehicle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newOrderService(NewMockOrderRepository(), NewMockLockStore())
	order := mustCreateOrder(t, svc)
	if _, err := svc.Dispatch(ctx, order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.AssignVehicle(ctx, order.ID, "  "); !errors.Is(err, service.ErrInvalidVehicleID) {
		t.Errorf("expected ErrInvalidVehicleID, got %v", err)
	}
}

func TestOrderLifecycle_UnknownOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newOrderService(NewMockOrderRepository(), NewMockLockStore())

	if _, err := svc.Dispatch(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Cancel(ctx, ""); !errors.Is(err, service.ErrInvalidOrderID) {
		t.Errorf("expected ErrInvalidOrderID, got %v", err)
	}
}

func TestOrderLifecycle_ConcurrentTransitionsApplyOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newOrderService(NewMockOrderRepository(), NewMockLockStore())
	order := mustCreateOrder(t, svc)

	const workers = 10
	var (
		wg         sync.WaitGroup
		dispatched int32
		cancelled  int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.Dispatch(ctx, order.ID)
				if err == nil {
					atomic.AddInt32(&dispatched, 1)
				}
			} else {
				_, err = svc.Cancel(ctx, order.ID)
				if err == nil {
					atomic.AddInt32(&cancelled, 1)
				}
			}
			if err != nil && !errors.Is(err, service.ErrInvalidTransition) && !errors.Is(err, service.ErrOrderBusy) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if dispatched+cancelled != 1 {
		t.Fatalf("expected exactly one winning transition, got %d dispatches and %d cancels", dispatched, cancelled)
	}
}

func TestOrderLifecycle_BusyLockTimesOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lockStore := NewMockLockStore()
	orderRepo := NewMockOrderRepository()
	svc := newOrderService(orderRepo, lockStore)
	order := mustCreateOrder(t, svc)

	lockStore.SetForceAcquireFailure(true)
	start := time.Now()
	_, err := svc.Dispatch(ctx, order.ID)

	if !errors.Is(err, service.ErrOrderBusy) {
		t.Fatalf("expected ErrOrderBusy, got %v", err)
	}
	if atomic.LoadInt32(&lockStore.AcquireCallCount) < 2 {
		t.Error("expected the lock to be retried")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("lock wait exceeded its budget: %s", elapsed)
	}
	if orderRepo.GetOrder(order.ID).Status != domain.OrderStatusPending {
		t.Error("order must stay PENDING")
	}
}

func TestOrderLifecycle_LockStoreErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	lockStore := NewMockLockStore()
	svc := newOrderService(NewMockOrderRepository(), lockStore)
	order := mustCreateOrder(t, svc)

	lockStore.AcquireError = ErrMockUnavailable
	_, err := svc.Dispatch(context.Background(), order.ID)

	if !errors.Is(err, ErrMockUnavailable) {
		t.Fatalf("expected lock store error, got %v", err)
	}
	if got := atomic.LoadInt32(&lockStore.AcquireCallCount); got != 1 {
		t.Errorf("expected 1 acquire attempt, got %d", got)
	}
}

func TestOrderLifecycle_UpdateFailureReleasesLock(t *testing.T) {
	t.Parallel()

	lockStore := NewMockLockStore()
	orderRepo := NewMockOrderRepository()
	svc := newOrderService(orderRepo, lockStore)
	order := mustCreateOrder(t, svc)

	orderRepo.UpdateError = ErrMockTimeout
	if _, err := svc.Dispatch(context.Background(), order.ID); !errors.Is(err, ErrMockTimeout) {
		t.Fatalf("expected update error, got %v", err)
	}
	if lockStore.IsLocked(order.ID) {
		t.Error("lock must be released after a failed transition")
	}
}

func TestOrderList_ActiveViewHidesCancelled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newOrderService(NewMockOrderRepository(), NewMockLockStore())
	kept := mustCreateOrder(t, svc)
	dropped := mustCreateOrder(t, svc)
	if _, err := svc.Cancel(ctx, dropped.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active, err := svc.List(ctx, repository.OrderFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].ID != kept.ID {
		t.Errorf("expected only %s, got %d orders", kept.ID, len(active))
	}

	all, err := svc.List(ctx, repository.OrderFilter{IncludeCancelled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 orders, got %d", len(all))
	}
}
