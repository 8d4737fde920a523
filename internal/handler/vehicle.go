package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// VehicleHandler handles HTTP requests from the driver app.
type VehicleHandler struct {
	vehicleService *service.VehicleService
}

// NewVehicleHandler creates a new VehicleHandler.
func NewVehicleHandler(vehicleService *service.VehicleService) *VehicleHandler {
	return &VehicleHandler{vehicleService: vehicleService}
}

// RegisterVehicleRequest is the HTTP request body for adding a vehicle.
type RegisterVehicleRequest struct {
	PlateNumber   string `json:"plate_number"`
	DriverName    string `json:"driver_name"`
	Type          string `json:"type"`
	WalletBalance int    `json:"wallet_balance"`
}

// UpdateLocationRequest is the HTTP request body for a position report.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UpdateStatusRequest is the HTTP request body for a status report.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// Register handles POST /v1/vehicles
func (h *VehicleHandler) Register(c *gin.Context) {
	var req RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	vehicle, err := h.vehicleService.Register(c.Request.Context(), service.RegisterVehicleRequest{
		PlateNumber:   req.PlateNumber,
		DriverName:    req.DriverName,
		Type:          req.Type,
		WalletBalance: req.WalletBalance,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toVehicleResponse(*vehicle))
}

// Get handles GET /v1/vehicles/:id
func (h *VehicleHandler) Get(c *gin.Context) {
	vehicle, err := h.vehicleService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toVehicleResponse(*vehicle))
}

// UpdateLocation handles POST /v1/vehicles/:id/location
func (h *VehicleHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.vehicleService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		VehicleID: c.Param("id"),
		Lat:       req.Lat,
		Lng:       req.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateStatus handles POST /v1/vehicles/:id/status
func (h *VehicleHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.vehicleService.SetStatus(c.Request.Context(), c.Param("id"), domain.VehicleStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
