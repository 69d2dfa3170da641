/*
Package observability provides structured logging and metrics collection
for the listings service.

Logs are JSON lines shaped for Loki and metrics are Prometheus collectors.
Every component of the service (cache, batch, resolver, planner, engine,
ranking, worker) asks the provider for its own logger and metrics.

# Architecture

	Provider (manages instances)
	    ├── Logger (JSON formatted for Loki)
	    └── Metrics (Prometheus compatible)

Component loggers derive from one root logger and share its write lock,
so entries from the engine and the batch fetcher never interleave on the
same writer. Metrics are cached per component and a collector is never
registered twice.

# Package Structure

	observability/
	├── types/
	│   └── interfaces.go   # Core contracts and types
	├── provider.go         # Provider implementation
	├── doc.go              # Package documentation
	├── logger/
	│   └── loki_logger.go  # Loki-optimized JSON logger
	├── metrics/
	│   └── prometheus_metrics.go
	└── mocks/
	    ├── mock_logger.go
	    ├── mock_metrics.go
	    └── mock_provider.go

# Usage

	provider := observability.NewProvider(&observability.Config{
	    ServiceName: "listings",
	    Environment: "production",
	    LogLevel:    "info",
	})
	defer provider.Close()

	logger := provider.Logger("engine")
	metrics := provider.Metrics("engine")

	ctx = context.WithValue(ctx, types.RequestIDKey, requestID)
	logger.Info(ctx, "Page resolved", observability.Fields{
	    "strategy": "store_paginated",
	    "listings": 12,
	})

	metrics.StartOperation("resolve")
	defer metrics.EndOperation("resolve")
	metrics.RecordResultSize("page", 12)

# Context Integration

The logger copies these context values into each entry when present:
  - types.TraceIDKey and types.SpanIDKey, set by the tracing middleware
  - types.RequestIDKey, set by the handler
  - types.RetryAttemptKey, set by the retry middleware

# Metrics Details

  - {service}_{component}_processed_total: Counter with labels [status, type]
  - {service}_{component}_errors_total: Counter with labels [error_type, operation]
  - {service}_{component}_duration_seconds: Histogram with label [operation]
  - {service}_{component}_result_size: Histogram with label [kind]
  - {service}_{component}_in_progress: Gauge with label [operation]

Names are sanitized to the Prometheus alphabet. Expose them with
promhttp.Handler() on /metrics.

# Testing

	mockLogger := mocks.NewQuietLogger()
	mockMetrics := new(mocks.MockMetrics)
	mockMetrics.On("RecordSuccess", "store_paginated").Return()
*/
package observability
