// Package config loads the service configuration from the environment and
// optional .env files.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Provider manages configuration lifecycle and ensures singleton behavior
type Provider struct {
	config *Config
	mu     sync.RWMutex
	loaded bool
	// dir is where .env files are looked up; empty means the working directory
	dir string
}

var (
	instance *Provider
	once     sync.Once
)

// GetProvider returns the singleton configuration provider instance
func GetProvider() *Provider {
	once.Do(func() {
		instance = &Provider{}
	})
	return instance
}

// NewProvider returns a standalone provider reading .env files from dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

// Load loads configuration from environment variables and .env files
// This should be called once at application startup
func (p *Provider) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return nil
	}

	if err := p.loadEnvFiles(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := p.parseConfig()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// MustLoad loads configuration and panics on error
func (p *Provider) MustLoad() {
	if err := p.Load(); err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
}

// Get returns the current configuration
// Returns error if configuration hasn't been loaded
func (p *Provider) Get() (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.loaded || p.config == nil {
		return nil, fmt.Errorf("configuration not loaded; call Load() first")
	}

	return p.config, nil
}

// MustGet returns the configuration or panics if not loaded
func (p *Provider) MustGet() *Config {
	cfg, err := p.Get()
	if err != nil {
		panic(fmt.Sprintf("failed to get configuration: %v", err))
	}
	return cfg
}

// Reload reloads configuration from environment
func (p *Provider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := p.parseConfig()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// IsLoaded returns whether configuration has been loaded
func (p *Provider) IsLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Reset clears the loaded configuration (useful for testing)
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config = nil
	p.loaded = false
}

func (p *Provider) path(name string) string {
	if p.dir == "" {
		return name
	}
	return p.dir + string(os.PathSeparator) + name
}

// loadEnvFiles loads .env files in order of precedence.
// .env never overrides the process environment; .env.<ENVIRONMENT> and
// .env.local override everything loaded before them.
func (p *Provider) loadEnvFiles() error {
	base := p.path(".env")
	if _, err := os.Stat(base); err == nil {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env != "" {
		envFile := p.path(".env." + env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	local := p.path(".env.local")
	if _, err := os.Stat(local); err == nil {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	return nil
}

// parseConfig parses configuration from environment variables
func (p *Provider) parseConfig() (*Config, error) {
	d := DefaultConfig()

	cfg := &Config{
		// Core
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", d.ServiceName),
		LogLevel:    getEnv("LOG_LEVEL", d.LogLevel),
		Version:     getEnv("SERVICE_VERSION", d.Version),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", d.Database.Host),
			Port:            getInt("DB_PORT", d.Database.Port),
			Database:        getEnv("DB_NAME", d.Database.Database),
			Username:        getEnv("DB_USER", d.Database.Username),
			Password:        getEnv("DB_PASSWORD", d.Database.Password),
			SSLMode:         getEnv("DB_SSL_MODE", d.Database.SSLMode),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", d.Database.ConnMaxLifetime),
		},

		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", d.HTTP.Addr),
			ReadTimeout:  getDuration("HTTP_READ_TIMEOUT", d.HTTP.ReadTimeout),
			WriteTimeout: getDuration("HTTP_WRITE_TIMEOUT", d.HTTP.WriteTimeout),
		},

		Handler: HandlerConfig{
			Timeout:        getDuration("HANDLER_TIMEOUT", d.Handler.Timeout),
			MaxRequestSize: int64(getInt("HANDLER_MAX_REQUEST_SIZE", int(d.Handler.MaxRequestSize))),
			EnableHealth:   getBool("HANDLER_ENABLE_HEALTH", d.Handler.EnableHealth),
			EnableMetrics:  getBool("HANDLER_ENABLE_METRICS", d.Handler.EnableMetrics),
			EnableTracing:  getBool("HANDLER_ENABLE_TRACING", d.Handler.EnableTracing),
			Platform:       getEnv("HANDLER_PLATFORM", ""),
		},

		Retry: RetryConfig{
			MaxAttempts:       getInt("RETRY_MAX_ATTEMPTS", d.Retry.MaxAttempts),
			InitialBackoff:    getDuration("RETRY_INITIAL_BACKOFF", d.Retry.InitialBackoff),
			MaxBackoff:        getDuration("RETRY_MAX_BACKOFF", d.Retry.MaxBackoff),
			BackoffMultiplier: getFloat64("RETRY_BACKOFF_MULTIPLIER", d.Retry.BackoffMultiplier),
		},

		Lambda: LambdaConfig{
			Timeout: getDuration("LAMBDA_TIMEOUT", d.Lambda.Timeout),
		},

		RabbitMQ: RabbitMQConfig{
			URL:           getEnv("RABBITMQ_URL", ""),
			Queue:         getEnv("RABBITMQ_QUEUE", ""),
			PrefetchCount: getInt("RABBITMQ_PREFETCH_COUNT", d.RabbitMQ.PrefetchCount),
			Timeout:       getDuration("RABBITMQ_TIMEOUT", d.RabbitMQ.Timeout),
		},

		Listings: ListingsConfig{
			PageSize:           getInt("LISTINGS_PAGE_SIZE", d.Listings.PageSize),
			MaxIDsPerQuery:     getInt("LISTINGS_MAX_IDS_PER_QUERY", d.Listings.MaxIDsPerQuery),
			MaxInFlight:        getInt("LISTINGS_MAX_IN_FLIGHT", d.Listings.MaxInFlight),
			CandidateCap:       getInt("LISTINGS_CANDIDATE_CAP", d.Listings.CandidateCap),
			TradeMatchCap:      getInt("LISTINGS_TRADE_MATCH_CAP", d.Listings.TradeMatchCap),
			TaxonomyTTL:        getDuration("LISTINGS_TAXONOMY_TTL", d.Listings.TaxonomyTTL),
			CacheSweepInterval: getDuration("LISTINGS_CACHE_SWEEP_INTERVAL", d.Listings.CacheSweepInterval),
			EnrichmentTimeout:  getDuration("LISTINGS_ENRICHMENT_TIMEOUT", d.Listings.EnrichmentTimeout),
		},
	}

	cfg.applyDefaults()

	return cfg, nil
}
