package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		resp.Fields = validationErr.Fields
	}

	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidOrderID),
		errors.Is(err, service.ErrInvalidVehicleID),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, domain.ErrNegativeRate):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrOrderBusy),
		errors.Is(err, service.ErrStaleSnapshot),
		errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict

	// Service unavailable
	case errors.Is(err, service.ErrRenderingUnavailable),
		errors.Is(err, service.ErrNoVehicleAvailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
