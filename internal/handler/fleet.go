package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
	"dispatch/internal/ws"
)

// FleetHandler handles HTTP requests for the fleet map.
type FleetHandler struct {
	tracker  *service.FleetTracker
	overview *service.OverviewService
	hub      *ws.Hub
}

// NewFleetHandler creates a new FleetHandler.
func NewFleetHandler(tracker *service.FleetTracker, overview *service.OverviewService, hub *ws.Hub) *FleetHandler {
	return &FleetHandler{
		tracker:  tracker,
		overview: overview,
		hub:      hub,
	}
}

// Selection sources.
const (
	selectFromList   = "list"
	selectFromMarker = "marker"
)

// SelectVehicleRequest is the HTTP request body for selecting a vehicle.
type SelectVehicleRequest struct {
	VehicleID   string `json:"vehicle_id"`
	Source      string `json:"source,omitempty"`       // list (default) or marker
	CurrentZoom int    `json:"current_zoom,omitempty"` // Map zoom when a marker was clicked
}

// VehicleResponse is the HTTP response for a tracked vehicle.
type VehicleResponse struct {
	ID            string  `json:"id"`
	PlateNumber   string  `json:"plate_number"`
	DriverName    string  `json:"driver_name"`
	Type          string  `json:"type"`
	WalletBalance int     `json:"wallet_balance"`
	Status        string  `json:"status"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
}

// SelectionResponse is the HTTP response for the current selection.
type SelectionResponse struct {
	Selected bool             `json:"selected"`
	Vehicle  *VehicleResponse `json:"vehicle,omitempty"`
}

// OverviewResponse is the HTTP response for the dashboard summary.
type OverviewResponse struct {
	TotalGMV       int `json:"total_gmv"`
	PendingOrders  int `json:"pending_orders"`
	ActiveVehicles int `json:"active_vehicles"`
	AvgWallet      int `json:"avg_wallet"`
	TotalOrders    int `json:"total_orders"`
	TotalVehicles  int `json:"total_vehicles"`
}

// StatusResponse reports whether the map can be drawn.
type StatusResponse struct {
	Rendering bool   `json:"rendering"`
	Error     string `json:"error,omitempty"`
}

func toVehicleResponse(v domain.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:            v.ID,
		PlateNumber:   v.PlateNumber,
		DriverName:    v.DriverName,
		Type:          v.Type,
		WalletBalance: v.WalletBalance,
		Status:        string(v.Status),
		Lat:           v.Location.Lat,
		Lng:           v.Location.Lng,
	}
}

func toSelectionResponse(v *domain.Vehicle, ok bool) SelectionResponse {
	if !ok {
		return SelectionResponse{}
	}
	resp := toVehicleResponse(*v)
	return SelectionResponse{Selected: true, Vehicle: &resp}
}

// ListVehicles handles GET /v1/fleet/vehicles?q=
func (h *FleetHandler) ListVehicles(c *gin.Context) {
	vehicles := h.tracker.Search(c.Query("q"))

	response := make([]VehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		response = append(response, toVehicleResponse(v))
	}
	respondJSON(c, http.StatusOK, response)
}

// Select handles POST /v1/fleet/select. Selecting a vehicle that is not in
// the fleet clears the selection and answers 404.
func (h *FleetHandler) Select(c *gin.Context) {
	var req SelectVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var (
		vehicle *domain.Vehicle
		ok      bool
	)
	switch req.Source {
	case "", selectFromList:
		vehicle, ok = h.tracker.Select(c.Request.Context(), req.VehicleID)
	case selectFromMarker:
		vehicle, ok = h.tracker.SelectFromMarker(c.Request.Context(), req.VehicleID, req.CurrentZoom)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "source must be list or marker"})
		return
	}

	code := http.StatusOK
	if !ok {
		code = http.StatusNotFound
	}
	respondJSON(c, code, toSelectionResponse(vehicle, ok))
}

// GetSelection handles GET /v1/fleet/selection
func (h *FleetHandler) GetSelection(c *gin.Context) {
	respondJSON(c, http.StatusOK, toSelectionResponse(h.tracker.Selection()))
}

// ClearSelection handles DELETE /v1/fleet/selection
func (h *FleetHandler) ClearSelection(c *gin.Context) {
	h.tracker.ClearSelection()
	c.Status(http.StatusNoContent)
}

// Overview handles GET /v1/fleet/overview
func (h *FleetHandler) Overview(c *gin.Context) {
	overview, err := h.overview.Overview(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, OverviewResponse{
		TotalGMV:       overview.TotalGMV,
		PendingOrders:  overview.PendingOrders,
		ActiveVehicles: overview.ActiveVehicles,
		AvgWallet:      overview.AvgWallet,
		TotalOrders:    overview.TotalOrders,
		TotalVehicles:  overview.TotalVehicles,
	})
}

// Status handles GET /v1/fleet/status. It answers 503 while markers cannot
// be drawn so the map surface can show its error panel.
func (h *FleetHandler) Status(c *gin.Context) {
	if err := h.tracker.RenderingStatus(); err != nil {
		respondJSON(c, mapErrorToHTTPStatus(err), StatusResponse{Error: err.Error()})
		return
	}
	respondJSON(c, http.StatusOK, StatusResponse{Rendering: true})
}

// Stream handles GET /v1/fleet/ws
func (h *FleetHandler) Stream(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
