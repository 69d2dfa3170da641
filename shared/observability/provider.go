// Package observability hands every component of the service its own
// structured logger and Prometheus metrics.
package observability

import (
	"io"
	"os"
	"sync"

	"findtrades/shared/observability/logger"
	"findtrades/shared/observability/metrics"
	"findtrades/shared/observability/types"

	"github.com/prometheus/client_golang/prometheus"
)

type (
	Logger   = types.Logger
	Metrics  = types.Metrics
	Fields   = types.Fields
	Config   = types.Config
	Provider = types.Provider
)

// DefaultProvider implements Provider. Component loggers are children of
// one root logger, so they share a single write lock on LogOutput.
type DefaultProvider struct {
	config *Config
	root   *logger.LokiLogger

	mu      sync.Mutex
	loggers map[string]Logger
	metrics map[string]Metrics
}

// NewProvider creates a provider. LogOutput defaults to os.Stdout and
// Registerer to prometheus.DefaultRegisterer.
//
//	obs := NewProvider(&Config{ServiceName: "findtrades", Environment: "production", LogLevel: "info"})
//	log := obs.Logger("engine")
func NewProvider(config *Config) Provider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	return &DefaultProvider{
		config: config,
		root: logger.New(config.ServiceName, config.Environment, config.LogLevel,
			config.LogOutput, config.AdditionalFields),
		loggers: make(map[string]Logger),
		metrics: make(map[string]Metrics),
	}
}

// lookup returns cache[key], creating it with build on first use.
func lookup[T any](mu *sync.Mutex, cache map[string]T, key string, build func() T) T {
	mu.Lock()
	defer mu.Unlock()
	if v, ok := cache[key]; ok {
		return v
	}
	v := build()
	cache[key] = v
	return v
}

// Logger returns the logger for component. Entries carry a "component"
// field next to the configured additional fields.
func (p *DefaultProvider) Logger(component string) Logger {
	return lookup(&p.mu, p.loggers, component, func() Logger {
		return p.root.WithFields(Fields{"component": component})
	})
}

// Metrics returns the metrics for component, named
// "{service}_{component}_*".
func (p *DefaultProvider) Metrics(component string) Metrics {
	return lookup(&p.mu, p.metrics, component, func() Metrics {
		namespace := component
		if p.config.ServiceName != "" {
			namespace = p.config.ServiceName + "_" + component
		}
		return metrics.NewWithRegisterer(namespace, p.config.Registerer)
	})
}

// Close closes LogOutput when it is a Closer other than stdout or stderr.
func (p *DefaultProvider) Close() error {
	closer, ok := p.config.LogOutput.(io.Closer)
	if !ok || closer == os.Stdout || closer == os.Stderr {
		return nil
	}
	return closer.Close()
}
