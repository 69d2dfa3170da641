package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	Database DatabaseConfig
	HTTP     HTTPConfig
	Handler  HandlerConfig
	Retry    RetryConfig
	Lambda   LambdaConfig
	RabbitMQ RabbitMQConfig
	Listings ListingsConfig
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// Connection pool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HandlerConfig holds handler configuration
type HandlerConfig struct {
	Timeout        time.Duration
	MaxRequestSize int64
	EnableHealth   bool
	EnableMetrics  bool
	EnableTracing  bool
	Platform       string // auto-detected if empty
}

// RetryConfig holds retry policy configuration
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// LambdaConfig holds Lambda-specific configuration
type LambdaConfig struct {
	Timeout time.Duration
}

// RabbitMQConfig holds the cache invalidation consumer configuration.
// An empty URL disables the consumer.
type RabbitMQConfig struct {
	URL           string
	Queue         string
	PrefetchCount int
	Timeout       time.Duration
}

// Enabled reports whether the invalidation consumer should run.
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != "" && r.Queue != ""
}

// ListingsConfig holds the listing engine tunables
type ListingsConfig struct {
	PageSize           int
	MaxIDsPerQuery     int
	MaxInFlight        int
	CandidateCap       int
	TradeMatchCap      int
	TaxonomyTTL        time.Duration
	CacheSweepInterval time.Duration
	EnrichmentTimeout  time.Duration
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	if c.IsProduction() {
		if c.Database.Password == "" {
			errors = append(errors, "DB_PASSWORD is required in production")
		}
		if c.Database.SSLMode == "disable" {
			errors = append(errors, "DB_SSL_MODE cannot be disable in production")
		}
	}

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if c.Handler.Timeout <= 0 {
		errors = append(errors, "HANDLER_TIMEOUT must be positive")
	}
	if c.Handler.MaxRequestSize <= 0 {
		errors = append(errors, "HANDLER_MAX_REQUEST_SIZE must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		errors = append(errors, "RETRY_MAX_ATTEMPTS cannot be negative")
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		errors = append(errors, "RETRY_BACKOFF_MULTIPLIER must be >= 1.0")
	}

	l := c.Listings
	if l.PageSize <= 0 {
		errors = append(errors, "LISTINGS_PAGE_SIZE must be positive")
	}
	if l.MaxIDsPerQuery <= 0 {
		errors = append(errors, "LISTINGS_MAX_IDS_PER_QUERY must be positive")
	}
	if l.MaxInFlight <= 0 {
		errors = append(errors, "LISTINGS_MAX_IN_FLIGHT must be positive")
	}
	if l.CandidateCap < l.PageSize {
		errors = append(errors, "LISTINGS_CANDIDATE_CAP must be at least LISTINGS_PAGE_SIZE")
	}
	if l.TradeMatchCap <= 0 {
		errors = append(errors, "LISTINGS_TRADE_MATCH_CAP must be positive")
	}
	if l.TaxonomyTTL <= 0 {
		errors = append(errors, "LISTINGS_TAXONOMY_TTL must be positive")
	}
	if l.CacheSweepInterval <= 0 {
		errors = append(errors, "LISTINGS_CACHE_SWEEP_INTERVAL must be positive")
	}
	if l.EnrichmentTimeout <= 0 {
		errors = append(errors, "LISTINGS_ENRICHMENT_TIMEOUT must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Environment detection methods

// IsLocal returns true if running in local/development environment
func (c *Config) IsLocal() bool {
	env := strings.ToLower(c.Environment)
	return env == "local" || env == "development" || env == "dev"
}

// IsStaging returns true if running in staging environment
func (c *Config) IsStaging() bool {
	env := strings.ToLower(c.Environment)
	return env == "staging" || env == "stage"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// IsTest returns true if running in test environment
func (c *Config) IsTest() bool {
	env := strings.ToLower(c.Environment)
	return env == "test" || env == "testing"
}
