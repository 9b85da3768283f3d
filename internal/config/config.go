// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sectorwatch/fleet-backend/internal/db"
	"github.com/sectorwatch/fleet-backend/internal/observability"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrInvalidDriver      = errors.New("DATABASE_DRIVER must be postgres or sqlite")
	ErrInvalidPort        = errors.New("PORT must be a number between 1 and 65535")
	ErrInvalidTimeout     = errors.New("REQUEST_TIMEOUT must be positive")
	ErrInvalidSampleRatio = errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
)

// Config holds the settings of the server and the command line tools.
type Config struct {
	Port           string
	Database       db.Options
	AllowedOrigins []string
	RequestTimeout time.Duration

	// Recompute-triggering requests per second per client; 0 disables.
	RecomputeRateLimit float64
	RecomputeBurst     int

	Tracing observability.TracingConfig
}

const (
	DefaultPort           = "5050"
	DefaultRequestTimeout = 30 * time.Second
)

// LoadFromEnv reads configuration from environment variables.
//
// Environment variables:
//   - PORT: listen port (default: 5050)
//   - DATABASE_URL: connection string, or a file path for sqlite (required)
//   - DATABASE_DRIVER: "postgres" or "sqlite" (default: "postgres")
//   - DATABASE_SCHEMA: postgres schema to create and use (optional)
//   - DATABASE_LOG_LEVEL: silent, error, warn or info (default: warn)
//   - CORS_ALLOWED_ORIGINS: comma separated origins, "*" for any
//   - REQUEST_TIMEOUT: Go duration (default: 30s)
//   - RECOMPUTE_RATE_LIMIT: requests per second per client (default: 2)
//   - RECOMPUTE_BURST: bucket size (default: 5)
//   - TRACING_ENABLED: "true" to export spans to stdout
//   - TRACING_SERVICE_NAME: default "fleet-backend"
//   - TRACING_SAMPLE_RATIO: 0..1 (default: 1)
//
// Malformed numbers are kept as invalid values so Validate reports them.
func LoadFromEnv() Config {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = DefaultPort
	}

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DATABASE_DRIVER")))
	if driver == "" {
		driver = db.DriverPostgres
	}

	timeout := DefaultRequestTimeout
	if raw := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			d = -1
		}
		timeout = d
	}

	service := strings.TrimSpace(os.Getenv("TRACING_SERVICE_NAME"))
	if service == "" {
		service = "fleet-backend"
	}

	return Config{
		Port: port,
		Database: db.Options{
			Driver:   driver,
			DSN:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
			Schema:   strings.TrimSpace(os.Getenv("DATABASE_SCHEMA")),
			LogLevel: strings.TrimSpace(os.Getenv("DATABASE_LOG_LEVEL")),
		},
		AllowedOrigins:     splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		RequestTimeout:     timeout,
		RecomputeRateLimit: floatEnv("RECOMPUTE_RATE_LIMIT", 2),
		RecomputeBurst:     intEnv("RECOMPUTE_BURST", 5),
		Tracing: observability.TracingConfig{
			Enabled:     strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "true"),
			ServiceName: service,
			SampleRatio: floatEnv("TRACING_SAMPLE_RATIO", 1),
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return ErrMissingDatabaseURL
	}
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidDriver, c.Database.Driver)
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return ErrInvalidPort
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RecomputeRateLimit < 0 {
		return errors.New("RECOMPUTE_RATE_LIMIT must not be negative")
	}
	if c.RecomputeBurst < 1 {
		return errors.New("RECOMPUTE_BURST must be at least 1")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func floatEnv(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return -1
	}
	return v
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
