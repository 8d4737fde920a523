package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// PricingHandler handles the pricing settings page.
type PricingHandler struct {
	settings *service.PricingSettings
}

// NewPricingHandler creates a new PricingHandler.
func NewPricingHandler(settings *service.PricingSettings) *PricingHandler {
	return &PricingHandler{settings: settings}
}

// PricingPayload is the pricing settings body, used for both reads and writes.
// Every field is required on write: settings are replaced as a whole.
type PricingPayload struct {
	BaseFare       *int `json:"base_fare" binding:"required"`
	PerKm          *int `json:"per_km" binding:"required"`
	PerMinute      *int `json:"per_minute" binding:"required"`
	NightSurcharge *int `json:"night_surcharge" binding:"required"`
}

func toPricingPayload(cfg domain.PricingConfig) PricingPayload {
	return PricingPayload{
		BaseFare:       &cfg.BaseFare,
		PerKm:          &cfg.PerKm,
		PerMinute:      &cfg.PerMinute,
		NightSurcharge: &cfg.NightSurcharge,
	}
}

// Get handles GET /v1/pricing
func (h *PricingHandler) Get(c *gin.Context) {
	respondJSON(c, http.StatusOK, toPricingPayload(h.settings.Current()))
}

// Put handles PUT /v1/pricing
func (h *PricingHandler) Put(c *gin.Context) {
	var req PricingPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "base_fare, per_km, per_minute and night_surcharge are required"})
		return
	}

	cfg := domain.PricingConfig{
		BaseFare:       *req.BaseFare,
		PerKm:          *req.PerKm,
		PerMinute:      *req.PerMinute,
		NightSurcharge: *req.NightSurcharge,
	}
	if err := h.settings.Replace(c.Request.Context(), cfg); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPricingPayload(h.settings.Current()))
}
