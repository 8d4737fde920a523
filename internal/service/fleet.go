package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"dispatch/internal/domain"
)

// MarkerColor is the color class of a vehicle marker.
type MarkerColor string

const (
	MarkerColorIdle MarkerColor = "idle"
	MarkerColorBusy MarkerColor = "busy"
)

// MarkerColorFor returns the marker color of a vehicle.
func MarkerColorFor(v domain.Vehicle) MarkerColor {
	if v.IsIdle() {
		return MarkerColorIdle
	}
	return MarkerColorBusy
}

// MarkerHandle identifies a marker drawn by a MarkerRenderer.
type MarkerHandle string

// MarkerRenderer draws vehicle markers on a map surface.
type MarkerRenderer interface {
	// Ready returns nil when markers can be drawn.
	Ready() error
	CreateMarker(vehicle domain.Vehicle, color MarkerColor) (MarkerHandle, error)
	UpdateMarker(handle MarkerHandle, position domain.Location, color MarkerColor) error
	RemoveMarker(handle MarkerHandle) error
	CenterOn(position domain.Location, zoom int) error
}

// MarkerRecord ties a vehicle to its marker. Handle is empty while the
// renderer is unavailable.
type MarkerRecord struct {
	VehicleID string
	Handle    MarkerHandle
	Position  domain.Location
	Color     MarkerColor
}

// ReconcileResult lists the vehicle IDs touched by one snapshot.
type ReconcileResult struct {
	Seq     uint64
	Removed []string
	Updated []string
	Created []string
}

// FleetTracker mirrors the latest fleet snapshot into a marker registry.
// All methods are safe for concurrent use.
type FleetTracker struct {
	mu              sync.Mutex
	renderer        MarkerRenderer
	registry        map[string]*MarkerRecord
	orphans         map[MarkerHandle]string // handles of deleted records still drawn
	vehicles        []domain.Vehicle
	index           map[string]int
	lastSeq         uint64
	selectedID      string
	renderErr       error
	focusZoom       int
	markerFocusZoom int
}

// NewFleetTracker creates a new FleetTracker. focusZoom is used when a vehicle
// is picked from the list, markerFocusZoom is the minimum zoom when it is
// picked from its marker.
func NewFleetTracker(renderer MarkerRenderer, focusZoom, markerFocusZoom int) *FleetTracker {
	return &FleetTracker{
		renderer:        renderer,
		registry:        make(map[string]*MarkerRecord),
		orphans:         make(map[MarkerHandle]string),
		index:           make(map[string]int),
		focusZoom:       focusZoom,
		markerFocusZoom: markerFocusZoom,
	}
}

// Apply replaces the known fleet with snap and reconciles the markers:
// records of vanished vehicles are removed first, then existing ones are
// updated and new ones created.
func (t *FleetTracker) Apply(ctx context.Context, snap domain.Snapshot) (*ReconcileResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.Seq != 0 && snap.Seq <= t.lastSeq {
		return nil, fmt.Errorf("%w: seq %d, last applied %d", ErrStaleSnapshot, snap.Seq, t.lastSeq)
	}

	// Later duplicates overwrite earlier ones but keep the first position.
	vehicles := make([]domain.Vehicle, 0, len(snap.Vehicles))
	index := make(map[string]int, len(snap.Vehicles))
	for _, v := range snap.Vehicles {
		if i, seen := index[v.ID]; seen {
			vehicles[i] = v
			continue
		}
		index[v.ID] = len(vehicles)
		vehicles = append(vehicles, v)
	}

	canRender := t.checkRenderer()
	if canRender {
		t.releaseOrphans()
	}
	result := &ReconcileResult{Seq: snap.Seq}

	for id, rec := range t.registry {
		if _, present := index[id]; present {
			continue
		}
		if rec.Handle != "" {
			if canRender {
				t.releaseMarker(rec.Handle, id)
			} else {
				t.orphans[rec.Handle] = id
			}
		}
		delete(t.registry, id)
		result.Removed = append(result.Removed, id)
	}
	sort.Strings(result.Removed)

	for _, v := range vehicles {
		color := MarkerColorFor(v)
		rec, exists := t.registry[v.ID]
		if exists {
			rec.Position = v.Location
			rec.Color = color
			if canRender {
				if rec.Handle == "" {
					rec.Handle = t.createMarker(v, color)
				} else if err := t.renderer.UpdateMarker(rec.Handle, v.Location, color); err != nil {
					log.Printf("[FLEET] Failed to update marker for vehicle=%s: %v", v.ID, err)
				}
			}
			result.Updated = append(result.Updated, v.ID)
			continue
		}

		rec = &MarkerRecord{VehicleID: v.ID, Position: v.Location, Color: color}
		if canRender {
			rec.Handle = t.createMarker(v, color)
		}
		t.registry[v.ID] = rec
		result.Created = append(result.Created, v.ID)
	}

	t.vehicles = vehicles
	t.index = index
	if snap.Seq != 0 {
		t.lastSeq = snap.Seq
	}

	if t.selectedID != "" {
		if _, present := index[t.selectedID]; !present {
			log.Printf("[FLEET] Selected vehicle=%s left the fleet, clearing selection", t.selectedID)
			t.selectedID = ""
		}
	}

	return result, nil
}

// Resync draws markers for every record that has none. It returns the number
// of markers created.
func (t *FleetTracker) Resync(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.checkRenderer() {
		return 0, t.renderErr
	}
	t.releaseOrphans()

	created := 0
	for _, v := range t.vehicles {
		rec := t.registry[v.ID]
		if rec == nil || rec.Handle != "" {
			continue
		}
		rec.Handle = t.createMarker(v, rec.Color)
		if rec.Handle != "" {
			created++
		}
	}
	return created, nil
}

// Select makes vehicleID the selected vehicle and centers the map on it.
// An unknown ID clears the selection.
func (t *FleetTracker) Select(ctx context.Context, vehicleID string) (*domain.Vehicle, bool) {
	return t.selectAt(vehicleID, func(int) int { return t.focusZoom }, 0)
}

// SelectFromMarker is Select for a click on the vehicle's marker: the map
// keeps currentZoom unless it is below the marker focus zoom.
func (t *FleetTracker) SelectFromMarker(ctx context.Context, vehicleID string, currentZoom int) (*domain.Vehicle, bool) {
	return t.selectAt(vehicleID, func(current int) int {
		if current < t.markerFocusZoom {
			return t.markerFocusZoom
		}
		return current
	}, currentZoom)
}

func (t *FleetTracker) selectAt(vehicleID string, zoomFor func(int) int, currentZoom int) (*domain.Vehicle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[vehicleID]
	if !ok {
		t.selectedID = ""
		return nil, false
	}

	t.selectedID = vehicleID
	v := t.vehicles[i]
	if t.checkRenderer() {
		if err := t.renderer.CenterOn(v.Location, zoomFor(currentZoom)); err != nil {
			log.Printf("[FLEET] Failed to center on vehicle=%s: %v", vehicleID, err)
		}
	}
	return &v, true
}

// ClearSelection drops the selection.
func (t *FleetTracker) ClearSelection() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.selectedID = ""
}

// Selection returns the selected vehicle as of the latest snapshot.
func (t *FleetTracker) Selection() (*domain.Vehicle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.selectedID == "" {
		return nil, false
	}
	v := t.vehicles[t.index[t.selectedID]]
	return &v, true
}

// Search returns the vehicles whose plate number or driver name contains
// query, ignoring case, in snapshot order. An empty query returns them all.
func (t *FleetTracker) Search(query string) []domain.Vehicle {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Vehicle, 0, len(t.vehicles))
	for _, v := range t.vehicles {
		if q == "" ||
			strings.Contains(strings.ToLower(v.PlateNumber), q) ||
			strings.Contains(strings.ToLower(v.DriverName), q) {
			result = append(result, v)
		}
	}
	return result
}

// Vehicle returns a vehicle of the latest snapshot.
func (t *FleetTracker) Vehicle(vehicleID string) (domain.Vehicle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[vehicleID]
	if !ok {
		return domain.Vehicle{}, false
	}
	return t.vehicles[i], true
}

// Records returns a copy of the marker registry ordered by vehicle ID.
func (t *FleetTracker) Records() []MarkerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := make([]MarkerRecord, 0, len(t.registry))
	for _, rec := range t.registry {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].VehicleID < records[j].VehicleID })
	return records
}

// RenderingStatus returns nil when markers are being drawn, or an error
// matching ErrRenderingUnavailable otherwise.
func (t *FleetTracker) RenderingStatus() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkRenderer()
	return t.renderErr
}

// checkRenderer refreshes renderErr. Must be called with t.mu held.
func (t *FleetTracker) checkRenderer() bool {
	if t.renderer == nil {
		t.renderErr = ErrRenderingUnavailable
		return false
	}
	if err := t.renderer.Ready(); err != nil {
		if t.renderErr == nil {
			log.Printf("[FLEET] Map rendering unavailable: %v", err)
		}
		t.renderErr = fmt.Errorf("%w: %v", ErrRenderingUnavailable, err)
		return false
	}
	if t.renderErr != nil {
		log.Printf("[FLEET] Map rendering available again")
	}
	t.renderErr = nil
	return true
}

// releaseMarker removes a marker whose record is gone. A handle the renderer
// could not remove is kept in orphans for the next pass. Must be called with
// t.mu held.
func (t *FleetTracker) releaseMarker(handle MarkerHandle, vehicleID string) {
	err := t.renderer.RemoveMarker(handle)
	if err == nil || errors.Is(err, ErrUnknownMarker) {
		delete(t.orphans, handle)
		return
	}
	log.Printf("[FLEET] Failed to remove marker for vehicle=%s: %v", vehicleID, err)
	t.orphans[handle] = vehicleID
}

// releaseOrphans retries the removal of markers left behind by earlier
// snapshots. Must be called with t.mu held and the renderer ready.
func (t *FleetTracker) releaseOrphans() {
	for handle, vehicleID := range t.orphans {
		t.releaseMarker(handle, vehicleID)
	}
}

// PendingRemovals returns the number of markers whose removal is still owed.
func (t *FleetTracker) PendingRemovals() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.orphans)
}

// createMarker returns an empty handle when the renderer refuses the marker,
// leaving the record to be drawn on a later pass.
func (t *FleetTracker) createMarker(v domain.Vehicle, color MarkerColor) MarkerHandle {
	handle, err := t.renderer.CreateMarker(v, color)
	if err != nil {
		log.Printf("[FLEET] Failed to create marker for vehicle=%s: %v", v.ID, err)
		return ""
	}
	return handle
}
