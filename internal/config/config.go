// Package config reads service settings from the environment, loading a .env
// file first when one is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port           string
	PostgresURL    string
	PostgresSchema string
	StoreDriver    string
	MigrationsPath string

	KafkaBrokers   []string
	LifecycleTopic string
	RedisURL       string

	EmailServiceURL     string
	OrdersServiceURL    string
	InventoryServiceURL string

	OTLPEndpoint    string
	ServiceVersion  string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	HTTPTimeout     time.Duration
	EmailMaxLatency time.Duration
	DBMaxOpenConns  int
}

// Load builds a Config for a service, using defaultPort when PORT is unset.
func Load(defaultPort string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", defaultPort),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		PostgresSchema:      getEnv("POSTGRES_SCHEMA", "rental"),
		StoreDriver:         getEnv("STORE_DRIVER", StoreDriverPostgres),
		MigrationsPath:      getEnv("MIGRATIONS_PATH", "file://migrations"),
		KafkaBrokers:        splitList(getEnv("KAFKA_BROKERS", "")),
		LifecycleTopic:      getEnv("LIFECYCLE_TOPIC", "order.lifecycle"),
		RedisURL:            getEnv("REDIS_URL", ""),
		EmailServiceURL:     getEnv("EMAIL_SERVICE_URL", ""),
		OrdersServiceURL:    getEnv("ORDERS_SERVICE_URL", ""),
		InventoryServiceURL: getEnv("INVENTORY_SERVICE_URL", ""),
		OTLPEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceVersion:      getEnv("SERVICE_VERSION", "0.1.0"),
		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ReadTimeout:         getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:        getEnvAsDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPTimeout:         getEnvAsDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second),
		EmailMaxLatency:     getEnvAsDuration("EMAIL_MAX_LATENCY", 0),
		DBMaxOpenConns:      getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	return cfg, nil
}

// Require fails when any of the named settings is empty.
func (c *Config) Require(names ...string) error {
	values := map[string]bool{
		"POSTGRES_URL":          c.PostgresURL != "",
		"KAFKA_BROKERS":         len(c.KafkaBrokers) > 0,
		"REDIS_URL":             c.RedisURL != "",
		"EMAIL_SERVICE_URL":     c.EmailServiceURL != "",
		"ORDERS_SERVICE_URL":    c.OrdersServiceURL != "",
		"INVENTORY_SERVICE_URL": c.InventoryServiceURL != "",
	}
	var missing []string
	for _, name := range names {
		if !values[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
