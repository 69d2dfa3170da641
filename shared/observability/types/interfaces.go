// Package types holds the observability contracts shared by every
// component of the listings service.
package types

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger writes structured, context-aware log entries.
type Logger interface {
	Debug(ctx context.Context, msg string, fields Fields)
	Info(ctx context.Context, msg string, fields Fields)
	// Warn is for degraded results that still answer the request, such as
	// a failed enrichment chunk.
	Warn(ctx context.Context, msg string, fields Fields)
	Error(ctx context.Context, msg string, err error, fields Fields)

	// WithFields returns a child logger that adds fields to every entry.
	// The parent is unaffected.
	WithFields(fields Fields) Logger
}

// Metrics records Prometheus metrics for one component.
type Metrics interface {
	// RecordSuccess counts a successful operation, e.g. "query" or "cache_hit".
	RecordSuccess(operationType string)

	// RecordError counts a failed operation by error category, e.g.
	// ("base_query", "store_unavailable").
	RecordError(operationType string, errorType string)

	// RecordDuration observes an operation latency in seconds.
	RecordDuration(operation string, duration float64)

	// RecordResultSize observes how many rows or listings an operation
	// produced, e.g. ("candidates", 240) or ("page", 12).
	RecordResultSize(kind string, size int)

	// StartOperation and EndOperation move the in-progress gauge. Pair them
	// with defer.
	StartOperation(operation string)
	EndOperation(operation string)
}

// Fields are structured log fields. Values must be JSON-encodable.
type Fields map[string]interface{}

// Config configures a Provider.
type Config struct {
	ServiceName string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer

	// AdditionalFields are added to every log entry.
	AdditionalFields Fields

	// Registerer receives the metric collectors. Defaults to
	// prometheus.DefaultRegisterer, which promhttp.Handler serves.
	Registerer prometheus.Registerer
}

// Provider hands out one Logger and one Metrics per component name.
// Repeated calls with the same name return the same instance.
type Provider interface {
	Logger(component string) Logger
	Metrics(component string) Metrics
	Close() error
}

// ContextKey is the type of the context keys the logger reads correlation
// identifiers from.
type ContextKey string

// Context keys populated by the request pipeline.
const (
	TraceIDKey      ContextKey = "trace_id"
	SpanIDKey       ContextKey = "span_id"
	ParentSpanIDKey ContextKey = "parent_span_id"
	RequestIDKey    ContextKey = "request_id"
	WorkerKey       ContextKey = "worker"
	PlatformKey     ContextKey = "platform"
	RetryAttemptKey ContextKey = "retry_attempt"
)
