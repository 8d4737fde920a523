// Package ws draws vehicle markers on connected map clients.
package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// Marker colors sent to map clients.
const (
	IdleColorHex = "#10b981"
	BusyColorHex = "#f59e0b"
)

// Event types.
const (
	EventMarkerCreate = "marker.create"
	EventMarkerUpdate = "marker.update"
	EventMarkerRemove = "marker.remove"
	EventMapCenter    = "map.center"
)

var (
	// ErrHubStopped is returned by Ready while the hub is not running.
	ErrHubStopped = errors.New("marker hub is not running")

	// ErrUnknownMarker is returned for a handle the hub never issued or already removed.
	ErrUnknownMarker = service.ErrUnknownMarker
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Position is a map coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Event is one drawing instruction for map clients.
type Event struct {
	Type      string    `json:"type"`
	Handle    string    `json:"handle,omitempty"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Position  *Position `json:"position,omitempty"`
	Color     string    `json:"color,omitempty"`
	Zoom      int       `json:"zoom,omitempty"`
}

// Hub implements service.MarkerRenderer by fanning events out to every
// connected client. It keeps the live markers so that a client joining late
// starts from the current map.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	markers map[service.MarkerHandle]Event
	running bool
}

// Ensure Hub implements service.MarkerRenderer.
var _ service.MarkerRenderer = (*Hub)(nil)

// NewHub creates a new Hub. It is not ready until Run is called.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		markers: make(map[service.MarkerHandle]Event),
	}
}

// Run marks the hub ready and blocks until ctx is done, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	log.Printf("[WS] Hub running")

	<-ctx.Done()

	h.mu.Lock()
	h.running = false
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	log.Printf("[WS] Hub stopped")
}

// Ready returns ErrHubStopped unless Run is active.
func (h *Hub) Ready() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubStopped
	}
	return nil
}

// CreateMarker draws a marker titled with the plate number.
func (h *Hub) CreateMarker(vehicle domain.Vehicle, color service.MarkerColor) (service.MarkerHandle, error) {
	handle := service.MarkerHandle(uuid.New().String())
	ev := Event{
		Type:      EventMarkerCreate,
		Handle:    string(handle),
		VehicleID: vehicle.ID,
		Title:     vehicle.PlateNumber,
		Position:  &Position{Lat: vehicle.Location.Lat, Lng: vehicle.Location.Lng},
		Color:     hexColor(color),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.markers[handle] = ev
	h.broadcastLocked(ev)
	return handle, nil
}

// UpdateMarker moves and recolors a marker.
func (h *Hub) UpdateMarker(handle service.MarkerHandle, position domain.Location, color service.MarkerColor) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored, ok := h.markers[handle]
	if !ok {
		return ErrUnknownMarker
	}
	stored.Position = &Position{Lat: position.Lat, Lng: position.Lng}
	stored.Color = hexColor(color)
	h.markers[handle] = stored

	h.broadcastLocked(Event{
		Type:      EventMarkerUpdate,
		Handle:    string(handle),
		VehicleID: stored.VehicleID,
		Position:  stored.Position,
		Color:     stored.Color,
	})
	return nil
}

// RemoveMarker erases a marker.
func (h *Hub) RemoveMarker(handle service.MarkerHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored, ok := h.markers[handle]
	if !ok {
		return ErrUnknownMarker
	}
	delete(h.markers, handle)

	h.broadcastLocked(Event{Type: EventMarkerRemove, Handle: string(handle), VehicleID: stored.VehicleID})
	return nil
}

// CenterOn pans every client's map.
func (h *Hub) CenterOn(position domain.Location, zoom int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcastLocked(Event{
		Type:     EventMapCenter,
		Position: &Position{Lat: position.Lat, Lng: position.Lng},
		Zoom:     zoom,
	})
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection as a map client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if err := h.Ready(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	client := newClient(conn, h, len(h.markers)+egressBuffer)
	for _, ev := range h.markers {
		client.send(ev)
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[WS] Client connected, clients=%d", count)
	go client.writePump()
	go client.readPump()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		log.Printf("[WS] Client disconnected, clients=%d", len(h.clients))
	}
}

// broadcastLocked must be called with h.mu held. Clients that cannot keep up
// are dropped.
func (h *Hub) broadcastLocked(ev Event) {
	for c := range h.clients {
		if !c.send(ev) {
			delete(h.clients, c)
			c.close()
			log.Printf("[WS] Dropped slow client")
		}
	}
}

func hexColor(color service.MarkerColor) string {
	if color == service.MarkerColorIdle {
		return IdleColorHex
	}
	return BusyColorHex
}
