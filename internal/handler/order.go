package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// OrderHandler handles HTTP requests for orders and quotes.
type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// AddressInput is a structured address as entered on a booking form.
type AddressInput struct {
	County   string `json:"county"`
	District string `json:"district"`
	Street   string `json:"street"`
}

func (a AddressInput) address() domain.Address {
	return domain.Address{County: a.County, District: a.District, Street: a.Street}
}

func (a AddressInput) full() string {
	return a.address().FullAddress()
}

// QuoteRequest is the HTTP request body for a fare estimate.
type QuoteRequest struct {
	Pickup      AddressInput `json:"pickup"`
	Destination AddressInput `json:"destination"`
	Surface     string       `json:"surface,omitempty"` // intake (default) or console
}

// QuoteResponse is the HTTP response for a fare estimate.
type QuoteResponse struct {
	Pickup          string `json:"pickup"`
	Destination     string `json:"destination"`
	Distance        int    `json:"distance_km"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int    `json:"price"`
}

// CreateOrderRequest is the HTTP request body for creating an order.
type CreateOrderRequest struct {
	ClientName  string       `json:"client_name"`
	ClientPhone string       `json:"client_phone"`
	Pickup      AddressInput `json:"pickup"`
	Destination AddressInput `json:"destination"`
	Note        string       `json:"note,omitempty"`
	Price       *int         `json:"price,omitempty"` // Operator override of the estimate
	Surface     string       `json:"surface,omitempty"`
}

// AssignVehicleRequest is the HTTP request body for recording a driver acceptance.
type AssignVehicleRequest struct {
	VehicleID string `json:"vehicle_id"`
}

// OrderResponse is the HTTP response for order data.
type OrderResponse struct {
	ID          string `json:"id"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
	Note        string `json:"note"`
	Price       int    `json:"price"`
	Status      string `json:"status"`
	VehicleID   string `json:"vehicle_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:          o.ID,
		ClientName:  o.ClientName,
		ClientPhone: o.ClientPhone,
		Pickup:      o.Pickup,
		Destination: o.Destination,
		Note:        o.Note,
		Price:       o.Price,
		Status:      string(o.Status),
		VehicleID:   o.VehicleID,
		CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   o.UpdatedAt.Format(time.RFC3339),
	}
}

// Quote handles POST /v1/quotes
func (h *OrderHandler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	// Booking forms only estimate once the street details are filled in.
	if missing := domain.MissingForQuote(req.Pickup.address(), req.Destination.address()); len(missing) > 0 {
		respondError(c, &service.ValidationError{Fields: missing})
		return
	}

	pickup, destination := req.Pickup.full(), req.Destination.full()
	estimate, err := h.orderService.Quote(c.Request.Context(), service.QuoteRequest{
		Pickup:      pickup,
		Destination: destination,
		Surface:     domain.Surface(req.Surface),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, QuoteResponse{
		Pickup:          pickup,
		Destination:     destination,
		Distance:        estimate.Distance,
		DurationMinutes: estimate.DurationMinutes,
		Price:           estimate.Price,
	})
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), service.CreateOrderRequest{
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		Pickup:      req.Pickup.full(),
		Destination: req.Destination.full(),
		Note:        req.Note,
		Price:       req.Price,
		Surface:     domain.Surface(req.Surface),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toOrderResponse(order))
}

// ListOrders handles GET /v1/orders?include_cancelled=true&status=PENDING
func (h *OrderHandler) ListOrders(c *gin.Context) {
	filter := repository.OrderFilter{Status: domain.OrderStatus(c.Query("status"))}
	if raw := c.Query("include_cancelled"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "include_cancelled must be a boolean"})
			return
		}
		filter.IncludeCancelled = include
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown status"})
		return
	}

	orders, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		response = append(response, toOrderResponse(o))
	}
	respondJSON(c, http.StatusOK, response)
}

// GetOrder handles GET /v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

// Dispatch handles POST /v1/orders/:id/dispatch
func (h *OrderHandler) Dispatch(c *gin.Context) {
	order, err := h.orderService.Dispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusAccepted, toOrderResponse(order))
}

// Cancel handles POST /v1/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	h.respondTransition(c, h.orderService.Cancel)
}

// Assign handles POST /v1/orders/:id/assign
func (h *OrderHandler) Assign(c *gin.Context) {
	var req AssignVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.orderService.AssignVehicle(c.Request.Context(), c.Param("id"), req.VehicleID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

// StartTrip handles POST /v1/orders/:id/start
func (h *OrderHandler) StartTrip(c *gin.Context) {
	h.respondTransition(c, h.orderService.StartTrip)
}

// CompleteTrip handles POST /v1/orders/:id/complete
func (h *OrderHandler) CompleteTrip(c *gin.Context) {
	h.respondTransition(c, h.orderService.CompleteTrip)
}

func (h *OrderHandler) respondTransition(c *gin.Context, apply func(ctx context.Context, orderID string) (*domain.Order, error)) {
	order, err := apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toOrderResponse(order))
}
