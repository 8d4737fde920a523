package config

import (
	"os"
	"strconv"
	"time"

	"dispatch/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	RabbitMQ RabbitMQConfig
	Pricing  PricingConfig
	Dispatch DispatchConfig
	Fleet    FleetConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the fleet roster.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// RabbitMQConfig holds the broker used to broadcast dispatch requests to drivers.
// When disabled, dispatch falls back to the simulated broadcaster.
type RabbitMQConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
}

// PricingConfig holds the fare rates and the per-surface distance models.
type PricingConfig struct {
	Rates  domain.PricingConfig
	Models domain.DistanceModels
}

// DispatchConfig holds the retry policy for dispatch acknowledgments.
type DispatchConfig struct {
	AckTimeout     time.Duration // Per broadcast attempt
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SimulatedDelay time.Duration // Delay of the simulated driver acceptance
	SearchRadiusKm float64       // Radius the simulated broadcaster searches for idle vehicles
	OriginLat      float64       // Point the simulated broadcaster searches around
	OriginLng      float64
	LockTTL        time.Duration
	LockWait       time.Duration // How long a transition waits for a busy order
}

// FleetConfig holds fleet tracking configuration.
type FleetConfig struct {
	TickInterval    time.Duration
	FocusZoom       int
	MarkerFocusZoom int
}

// Load loads configuration from environment variables.
func Load() *Config {
	defaultRates := domain.DefaultPricingConfig()
	intake := domain.IntakeDistanceModel()
	console := domain.ConsoleDistanceModel()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "taxi_dispatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "taxi-dispatch-console"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  getBoolEnv("RABBITMQ_ENABLED", false),
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getIntEnv("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "dispatch_topic"),
		},
		Pricing: PricingConfig{
			Rates: domain.PricingConfig{
				BaseFare:       getIntEnv("PRICING_BASE_FARE", defaultRates.BaseFare),
				PerKm:          getIntEnv("PRICING_PER_KM", defaultRates.PerKm),
				PerMinute:      getIntEnv("PRICING_PER_MINUTE", defaultRates.PerMinute),
				NightSurcharge: getIntEnv("PRICING_NIGHT_SURCHARGE", defaultRates.NightSurcharge),
			},
			Models: domain.DistanceModels{
				Intake: domain.DistanceModel{
					Divisor:     getIntEnv("PRICING_INTAKE_DIVISOR", intake.Divisor),
					MinDistance: getIntEnv("PRICING_INTAKE_MIN_DISTANCE", intake.MinDistance),
					SpeedFactor: getFloatEnv("PRICING_INTAKE_SPEED_FACTOR", intake.SpeedFactor),
				},
				Console: domain.DistanceModel{
					Divisor:     getIntEnv("PRICING_CONSOLE_DIVISOR", console.Divisor),
					MinDistance: getIntEnv("PRICING_CONSOLE_MIN_DISTANCE", console.MinDistance),
					SpeedFactor: getFloatEnv("PRICING_CONSOLE_SPEED_FACTOR", console.SpeedFactor),
				},
			},
		},
		Dispatch: DispatchConfig{
			AckTimeout:     getDurationEnv("DISPATCH_ACK_TIMEOUT", 5*time.Second),
			MaxAttempts:    getIntEnv("DISPATCH_MAX_ATTEMPTS", 3),
			InitialBackoff: getDurationEnv("DISPATCH_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     getDurationEnv("DISPATCH_MAX_BACKOFF", 5*time.Second),
			SimulatedDelay: getDurationEnv("DISPATCH_SIMULATED_DELAY", 1500*time.Millisecond),
			SearchRadiusKm: getFloatEnv("DISPATCH_SEARCH_RADIUS_KM", 5.0),
			OriginLat:      getFloatEnv("DISPATCH_ORIGIN_LAT", 22.6273),
			OriginLng:      getFloatEnv("DISPATCH_ORIGIN_LNG", 120.3014),
			LockTTL:        getDurationEnv("DISPATCH_LOCK_TTL", 10*time.Second),
			LockWait:       getDurationEnv("DISPATCH_LOCK_WAIT", 2*time.Second),
		},
		Fleet: FleetConfig{
			TickInterval:    getDurationEnv("FLEET_TICK_INTERVAL", 3*time.Second),
			FocusZoom:       getIntEnv("FLEET_FOCUS_ZOOM", 16),
			MarkerFocusZoom: getIntEnv("FLEET_MARKER_FOCUS_ZOOM", 15),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
