package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	OrderHandler     *handler.OrderHandler
	FleetHandler     *handler.FleetHandler
	VehicleHandler   *handler.VehicleHandler
	PricingHandler   *handler.PricingHandler
	IdempotencyStore middleware.IdempotencyStore // Optional
	NewRelicApp      *newrelic.Application       // Optional
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/quotes", deps.OrderHandler.Quote)

		orders := v1.Group("/orders")
		{
			orders.POST("", deps.OrderHandler.CreateOrder)
			orders.GET("", deps.OrderHandler.ListOrders)
			orders.GET("/:id", deps.OrderHandler.GetOrder)
			orders.POST("/:id/dispatch", deps.OrderHandler.Dispatch)
			orders.POST("/:id/cancel", deps.OrderHandler.Cancel)
			orders.POST("/:id/assign", deps.OrderHandler.Assign)
			orders.POST("/:id/start", deps.OrderHandler.StartTrip)
			orders.POST("/:id/complete", deps.OrderHandler.CompleteTrip)
		}

		fleet := v1.Group("/fleet")
		{
			fleet.GET("/vehicles", deps.FleetHandler.ListVehicles)
			fleet.POST("/select", deps.FleetHandler.Select)
			fleet.GET("/selection", deps.FleetHandler.GetSelection)
			fleet.DELETE("/selection", deps.FleetHandler.ClearSelection)
			fleet.GET("/overview", deps.FleetHandler.Overview)
			fleet.GET("/status", deps.FleetHandler.Status)
			fleet.GET("/ws", deps.FleetHandler.Stream)
		}

		vehicles := v1.Group("/vehicles")
		{
			vehicles.POST("", deps.VehicleHandler.Register)
			vehicles.GET("/:id", deps.VehicleHandler.Get)
			vehicles.POST("/:id/location", deps.VehicleHandler.UpdateLocation)
			vehicles.POST("/:id/status", deps.VehicleHandler.UpdateStatus)
		}

		pricing := v1.Group("/pricing")
		{
			pricing.GET("", deps.PricingHandler.Get)
			pricing.PUT("", deps.PricingHandler.Put)
		}
	}

	return router
}
