package config

import "time"

// DefaultDatabaseConfig returns defaults for a local Postgres
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "findtrades",
		Username:        "postgres",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultHTTPConfig returns defaults for the HTTP server
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
	}
}

// DefaultHandlerConfig returns sensible defaults for handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Timeout:        30 * time.Second,
		MaxRequestSize: 1 * 1024 * 1024, // 1MB
		EnableHealth:   true,
		EnableMetrics:  true,
		EnableTracing:  true,
		Platform:       "", // Auto-detect
	}
}

// DefaultRetryConfig returns sensible defaults for retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultLambdaConfig returns sensible defaults for Lambda configuration
func DefaultLambdaConfig() LambdaConfig {
	return LambdaConfig{
		Timeout: 30 * time.Second,
	}
}

// DefaultRabbitMQConfig leaves the consumer disabled
func DefaultRabbitMQConfig() RabbitMQConfig {
	return RabbitMQConfig{
		Queue:         "listings-cache-invalidation",
		PrefetchCount: 10,
		Timeout:       30 * time.Second,
	}
}

// DefaultListingsConfig returns the engine tunables
func DefaultListingsConfig() ListingsConfig {
	return ListingsConfig{
		PageSize:           12,
		MaxIDsPerQuery:     100,
		MaxInFlight:        4,
		CandidateCap:       500,
		TradeMatchCap:      10,
		TaxonomyTTL:        time.Hour,
		CacheSweepInterval: 5 * time.Minute,
		EnrichmentTimeout:  3 * time.Second,
	}
}

// DefaultConfig returns a complete configuration with sensible defaults.
// Useful for tests and for the one-shot query command.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		ServiceName: "findtrades-listings",
		LogLevel:    "info",
		Version:     "1.0.0",

		Database: DefaultDatabaseConfig(),
		HTTP:     DefaultHTTPConfig(),
		Handler:  DefaultHandlerConfig(),
		Retry:    DefaultRetryConfig(),
		Lambda:   DefaultLambdaConfig(),
		RabbitMQ: DefaultRabbitMQConfig(),
		Listings: DefaultListingsConfig(),
	}
}

// applyDefaults applies environment-specific defaults
func (c *Config) applyDefaults() {
	if c.IsProduction() {
		if c.Handler.Timeout < 10*time.Second {
			c.Handler.Timeout = 10 * time.Second
		}
		c.Handler.EnableMetrics = true
		c.Handler.EnableTracing = true
	}

	if c.IsLocal() {
		c.Handler.EnableTracing = false
	}

	// the invalidation queue is shared per environment
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "listings-" + c.Environment + "-cache-invalidation"
	}
}
