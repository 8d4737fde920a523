package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/app"
	"dispatch/internal/broker"
	"dispatch/internal/config"
	"dispatch/internal/domain"
	"dispatch/internal/handler"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/repository/memory"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/service"
	"dispatch/internal/ws"
)

func main() {
	// A .env file is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to read .env: %v", err)
	}

	cfg := config.Load()

	// Background workers live until shutdown.
	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	ctx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	var mq *broker.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		mq, err = broker.NewRabbitMQ(runCtx, cfg.RabbitMQ)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer mq.Close()
		log.Println("Connected to RabbitMQ")
	}

	srv, err := wireServer(ctx, runCtx, db, redisClient, mq, nrApp, cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	if err := srv.dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Printf("dispatcher forced to shutdown: %v", err)
	}
	stopWorkers()

	if nrApp != nil {
		nrApp.Shutdown(3 * time.Second)
	}

	log.Println("Server exited")
}

// server bundles what main has to stop on shutdown.
type server struct {
	http       *http.Server
	dispatcher *service.Dispatcher
}

// wireServer wires all dependencies, starts the background workers on runCtx
// and returns the HTTP server. ctx bounds start-up calls only.
func wireServer(
	ctx, runCtx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	mq *broker.RabbitMQ,
	nrApp *newrelic.Application,
	cfg *config.Config,
) (*server, error) {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)
	idempotencyStore := internalRedis.NewIdempotencyStore(redisClient)

	// Initialize repositories. Orders are not persisted across restarts.
	vehicleRepo := postgres.NewVehicleRepository(db)
	orderRepo := memory.NewOrderRepository()

	// Pricing settings: shared copy in Redis wins over the environment.
	settings, err := service.NewPricingSettings(cfg.Pricing.Rates, cacheStore)
	if err != nil {
		return nil, fmt.Errorf("pricing rates: %w", err)
	}
	if err := settings.Load(ctx); err != nil {
		log.Printf("[PRICING] Using configured rates: %v", err)
	}

	// Fleet map.
	hub := ws.NewHub()
	go hub.Run(runCtx)

	tracker := service.NewFleetTracker(hub, cfg.Fleet.FocusZoom, cfg.Fleet.MarkerFocusZoom)
	feed := service.NewFleetFeed(vehicleRepo, locationStore, cacheStore, tracker)
	go feed.Run(runCtx, cfg.Fleet.TickInterval)

	// Order lifecycle.
	notificationService := service.NewNotificationService(nrApp)
	orderService := service.NewOrderService(
		orderRepo,
		lockStore,
		service.NewPricingEstimator(),
		settings,
		cfg.Pricing.Models,
		notificationService,
		service.LockPolicy{TTL: cfg.Dispatch.LockTTL, Wait: cfg.Dispatch.LockWait},
	)

	var broadcaster service.DispatchBroadcaster
	if mq != nil {
		broadcaster = broker.NewRabbitBroadcaster(mq, cfg.RabbitMQ.Exchange)
	} else {
		origin := domain.Location{Lat: cfg.Dispatch.OriginLat, Lng: cfg.Dispatch.OriginLng}
		broadcaster = service.NewSimulatedBroadcaster(
			locationStore, tracker, origin, cfg.Dispatch.SearchRadiusKm, cfg.Dispatch.SimulatedDelay,
		)
		log.Println("[DISPATCH] RabbitMQ disabled, using simulated driver acceptance")
	}

	dispatcher := service.NewDispatcher(broadcaster, orderService, service.DispatchPolicy{
		AckTimeout:     cfg.Dispatch.AckTimeout,
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		InitialBackoff: cfg.Dispatch.InitialBackoff,
		MaxBackoff:     cfg.Dispatch.MaxBackoff,
	})
	orderService.SetDispatcher(dispatcher)

	if mq != nil {
		consumer := broker.NewAcceptanceConsumer(mq, dispatcher, "dispatch-console")
		go consumer.Run(runCtx)
	}

	vehicleService := service.NewVehicleService(locationStore, cacheStore, vehicleRepo)
	overviewService := service.NewOverviewService(orderRepo, tracker)

	router := app.NewRouter(app.RouterDeps{
		OrderHandler:     handler.NewOrderHandler(orderService),
		FleetHandler:     handler.NewFleetHandler(tracker, overviewService, hub),
		VehicleHandler:   handler.NewVehicleHandler(vehicleService),
		PricingHandler:   handler.NewPricingHandler(settings),
		IdempotencyStore: idempotencyStore,
		NewRelicApp:      nrApp,
	})

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		dispatcher: dispatcher,
	}, nil
}
