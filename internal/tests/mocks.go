package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ──────────────────────────────────────────────
// MOCK VEHICLE REPOSITORY
// ──────────────────────────────────────────────

// MockVehicleRepository is a mock implementation of VehicleRepository.
// GetAll returns vehicles in insertion order.
type MockVehicleRepository struct {
	mu       sync.RWMutex
	vehicles map[string]*domain.Vehicle
	order    []string

	// Counters for verification
	CreateCallCount       int32
	GetAllCallCount       int32
	UpdateStatusCallCount int32

	// Error injection
	CreateError       error
	GetAllError       error
	UpdateStatusError error
}

// NewMockVehicleRepository creates a new mock vehicle repository.
func NewMockVehicleRepository() *MockVehicleRepository {
	return &MockVehicleRepository{
		vehicles: make(map[string]*domain.Vehicle),
	}
}

// AddVehicle adds a vehicle to the mock repository.
func (m *MockVehicleRepository) AddVehicle(vehicle *domain.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[vehicle.ID]; !ok {
		m.order = append(m.order, vehicle.ID)
	}
	m.vehicles[vehicle.ID] = vehicle
}

func (m *MockVehicleRepository) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vehicles {
		if v.PlateNumber == vehicle.PlateNumber {
			return repository.ErrAlreadyExists
		}
	}
	stored := *vehicle
	m.vehicles[vehicle.ID] = &stored
	m.order = append(m.order, vehicle.ID)
	return nil
}

func (m *MockVehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vehicle, ok := m.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *vehicle
	return &copy, nil
}

func (m *MockVehicleRepository) GetByPlate(ctx context.Context, plate string) (*domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		if v.PlateNumber == plate {
			copy := *v
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockVehicleRepository) GetAll(ctx context.Context) ([]*domain.Vehicle, error) {
	atomic.AddInt32(&m.GetAllCallCount, 1)
	if m.GetAllError != nil {
		return nil, m.GetAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Vehicle, 0, len(m.order))
	for _, id := range m.order {
		copy := *m.vehicles[id]
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockVehicleRepository) UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	vehicle, ok := m.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	vehicle.Status = status
	return nil
}

// GetVehicle returns vehicle for test assertions.
func (m *MockVehicleRepository) GetVehicle(id string) *domain.Vehicle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vehicles[id]
}

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// AddOrder adds an order to the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *order
	m.orders[order.ID] = &stored
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *order
	return &copy, nil
}

func (m *MockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !filter.IncludeCancelled && o.Status == domain.OrderStatusCancelled {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		copy := *o
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; !ok {
		return repository.ErrNotFound
	}
	stored := *order
	m.orders[order.ID] = &stored
	return nil
}

// GetOrder returns the stored order by ID (for test assertions).
func (m *MockOrderRepository) GetOrder(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

// CountOrders returns the number of orders.
func (m *MockOrderRepository) CountOrders() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is a mock implementation of LocationStore.
// FindNearbyVehicles returns every position in insertion order, which
// tests use as "closest first".
type MockLocationStore struct {
	mu        sync.RWMutex
	locations []redis.VehicleLocation

	// Counters
	UpdateLocationCallCount int32
	RemoveLocationCallCount int32

	// Error injection
	UpdateLocationError     error
	GetLocationsError       error
	FindNearbyVehiclesError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		locations: make([]redis.VehicleLocation, 0),
	}
}

// SetLocations sets all locations (for test setup).
func (m *MockLocationStore) SetLocations(locations []redis.VehicleLocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = locations
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, vehicleID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Update existing or add new.
	for i, loc := range m.locations {
		if loc.VehicleID == vehicleID {
			m.locations[i].Lat = lat
			m.locations[i].Lng = lng
			return nil
		}
	}
	m.locations = append(m.locations, redis.VehicleLocation{
		VehicleID: vehicleID,
		Lat:       lat,
		Lng:       lng,
	})
	return nil
}

func (m *MockLocationStore) GetLocations(ctx context.Context, vehicleIDs []string) (map[string]redis.VehicleLocation, error) {
	if m.GetLocationsError != nil {
		return nil, m.GetLocationsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[string]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		wanted[id] = true
	}
	result := make(map[string]redis.VehicleLocation)
	for _, loc := range m.locations {
		if wanted[loc.VehicleID] {
			result[loc.VehicleID] = loc
		}
	}
	return result, nil
}

func (m *MockLocationStore) FindNearbyVehicles(ctx context.Context, lat, lng, radiusKm float64) ([]redis.VehicleLocation, error) {
	if m.FindNearbyVehiclesError != nil {
		return nil, m.FindNearbyVehiclesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]redis.VehicleLocation, len(m.locations))
	copy(result, m.locations)
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, vehicleID string) error {
	atomic.AddInt32(&m.RemoveLocationCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loc := range m.locations {
		if loc.VehicleID == vehicleID {
			m.locations = append(m.locations[:i], m.locations[i+1:]...)
			return nil
		}
	}
	return nil
}

// HasLocation checks if a vehicle location exists.
func (m *MockLocationStore) HasLocation(vehicleID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, loc := range m.locations {
		if loc.VehicleID == vehicleID {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu     sync.Mutex
	locks  map[string]mockLock
	tokens int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

type mockLock struct {
	token  string
	expiry time.Time
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]mockLock),
	}
}

func (m *MockLockStore) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceAcquireFailure {
		return "", false, nil
	}

	key := "lock:order:" + orderID
	if held, exists := m.locks[key]; exists {
		if time.Now().Before(held.expiry) {
			return "", false, nil // Lock still held.
		}
	}

	m.tokens++
	token := fmt.Sprintf("token-%d", m.tokens)
	m.locks[key] = mockLock{token: token, expiry: time.Now().Add(ttl)}
	return token, true, nil
}

func (m *MockLockStore) ReleaseOrderLock(ctx context.Context, orderID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "lock:order:" + orderID
	if held, exists := m.locks[key]; exists && held.token == token {
		delete(m.locks, key)
	}
	return nil
}

// IsLocked checks if an order is locked (for test assertions).
func (m *MockLockStore) IsLocked(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, exists := m.locks["lock:order:"+orderID]
	return exists && time.Now().Before(held.expiry)
}

// SetForceAcquireFailure toggles lock contention.
func (m *MockLockStore) SetForceAcquireFailure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForceAcquireFailure = fail
}

// ──────────────────────────────────────────────
// MOCK CACHES
// ──────────────────────────────────────────────

// MockRosterCache is a mock implementation of the roster cache.
type MockRosterCache struct {
	mu     sync.Mutex
	roster []redis.CachedVehicle

	// Counters
	GetCallCount        int32
	SetCallCount        int32
	InvalidateCallCount int32
}

// NewMockRosterCache creates a new empty roster cache.
func NewMockRosterCache() *MockRosterCache {
	return &MockRosterCache{}
}

func (m *MockRosterCache) GetRoster(ctx context.Context) ([]redis.CachedVehicle, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roster, nil
}

func (m *MockRosterCache) SetRoster(ctx context.Context, roster []redis.CachedVehicle) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = roster
	return nil
}

func (m *MockRosterCache) InvalidateRoster(ctx context.Context) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = nil
	return nil
}

// MockPricingCache is a mock implementation of the shared pricing settings.
type MockPricingCache struct {
	mu      sync.Mutex
	pricing *redis.CachedPricing

	// Error injection
	SetError error
}

// NewMockPricingCache creates a new empty pricing cache.
func NewMockPricingCache() *MockPricingCache {
	return &MockPricingCache{}
}

func (m *MockPricingCache) GetPricing(ctx context.Context) (*redis.CachedPricing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pricing, nil
}

func (m *MockPricingCache) SetPricing(ctx context.Context, pricing *redis.CachedPricing) error {
	if m.SetError != nil {
		return m.SetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pricing = pricing
	return nil
}

// ──────────────────────────────────────────────
// MOCK MARKER RENDERER
// ──────────────────────────────────────────────

// CenterCall records one CenterOn call.
type CenterCall struct {
	Position domain.Location
	Zoom     int
}

// MockRenderer is a mock implementation of MarkerRenderer.
type MockRenderer struct {
	mu      sync.Mutex
	markers map[service.MarkerHandle]string
	seq     int

	Created []string
	Updated []string
	Removed []string
	Centers []CenterCall

	// Error injection
	ReadyError  error
	CreateError error
	RemoveError error
}

// NewMockRenderer creates a ready renderer.
func NewMockRenderer() *MockRenderer {
	return &MockRenderer{
		markers: make(map[service.MarkerHandle]string),
	}
}

// SetReady toggles renderer availability.
func (m *MockRenderer) SetReady(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadyError = err
}

func (m *MockRenderer) Ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReadyError
}

func (m *MockRenderer) CreateMarker(vehicle domain.Vehicle, color service.MarkerColor) (service.MarkerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return "", m.CreateError
	}
	m.seq++
	handle := service.MarkerHandle(fmt.Sprintf("marker-%d", m.seq))
	m.markers[handle] = vehicle.ID
	m.Created = append(m.Created, vehicle.ID)
	return handle, nil
}

func (m *MockRenderer) UpdateMarker(handle service.MarkerHandle, position domain.Location, color service.MarkerColor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.markers[handle]
	if !ok {
		return ErrMockUnknownMarker
	}
	m.Updated = append(m.Updated, id)
	return nil
}

func (m *MockRenderer) RemoveMarker(handle service.MarkerHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveError != nil {
		return m.RemoveError
	}
	id, ok := m.markers[handle]
	if !ok {
		return ErrMockUnknownMarker
	}
	delete(m.markers, handle)
	m.Removed = append(m.Removed, id)
	return nil
}

func (m *MockRenderer) CenterOn(position domain.Location, zoom int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Centers = append(m.Centers, CenterCall{Position: position, Zoom: zoom})
	return nil
}

// LiveMarkers returns the number of markers currently drawn.
func (m *MockRenderer) LiveMarkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.markers)
}

// Reset forgets recorded calls, keeping live markers.
func (m *MockRenderer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created, m.Updated, m.Removed, m.Centers = nil, nil, nil, nil
}

// LastCenter returns the latest CenterOn call.
func (m *MockRenderer) LastCenter() (CenterCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Centers) == 0 {
		return CenterCall{}, false
	}
	return m.Centers[len(m.Centers)-1], true
}

// ──────────────────────────────────────────────
// MOCK DISPATCH BROADCASTER
// ──────────────────────────────────────────────

// MockBroadcaster is a scripted DispatchBroadcaster. The first FailTimes
// calls fail with FailError; later calls answer with VehicleID. With Block
// set, every call waits for its context instead.
type MockBroadcaster struct {
	mu        sync.Mutex
	FailTimes int
	FailError error
	VehicleID string
	Block     bool

	// Counters
	BroadcastCallCount int32
}

// NewMockBroadcaster creates a broadcaster whose driver accepts immediately.
func NewMockBroadcaster(vehicleID string) *MockBroadcaster {
	return &MockBroadcaster{VehicleID: vehicleID, FailError: ErrMockTimeout}
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, order *domain.Order) (*service.DispatchAck, error) {
	call := atomic.AddInt32(&m.BroadcastCallCount, 1)

	m.mu.Lock()
	block, failTimes, failErr, vehicleID := m.Block, m.FailTimes, m.FailError, m.VehicleID
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if int(call) <= failTimes {
		return nil, failErr
	}
	return &service.DispatchAck{OrderID: order.ID, VehicleID: vehicleID, AckedAt: time.Now()}, nil
}

// Calls returns the number of broadcasts so far.
func (m *MockBroadcaster) Calls() int {
	return int(atomic.LoadInt32(&m.BroadcastCallCount))
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockTimeout       = errors.New("mock: operation timeout")
	ErrMockUnavailable   = errors.New("mock: backend unavailable")
	ErrMockUnknownMarker = fmt.Errorf("mock: %w", service.ErrUnknownMarker)
)
