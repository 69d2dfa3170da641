// Package metrics provides Prometheus-compatible metrics collection
// for the listings service components.
package metrics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using the Prometheus
// client library. All metric names carry the sanitized namespace as a prefix.
type PrometheusMetrics struct {
	namespace string

	// processedTotal tracks processed operations by status and type
	processedTotal *prometheus.CounterVec
	// errorsTotal tracks errors by error type and operation
	errorsTotal *prometheus.CounterVec
	// durationSeconds tracks operation latency
	durationSeconds *prometheus.HistogramVec
	// resultSize tracks how many rows or listings an operation produced
	resultSize *prometheus.HistogramVec
	// inProgress tracks operations currently running
	inProgress *prometheus.GaugeVec
}

// New creates a PrometheusMetrics registered with the default registerer.
//
// Pre-configured metrics:
//   - {namespace}_processed_total: Counter for successful and failed operations
//   - {namespace}_errors_total: Counter for errors by type and operation
//   - {namespace}_duration_seconds: Histogram for operation durations
//   - {namespace}_result_size: Histogram for result cardinalities
//   - {namespace}_in_progress: Gauge for concurrent operations
func New(namespace string) *PrometheusMetrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a PrometheusMetrics registered with reg.
// The namespace is sanitized into a valid metric prefix, so "listings.engine"
// becomes "listings_engine". Registering the same namespace twice reuses the
// collectors that are already registered instead of panicking.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	ns := SanitizeName(namespace)
	m := &PrometheusMetrics{namespace: ns}

	m.processedTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: ns + "_processed_total",
			Help: fmt.Sprintf("Total processed operations in %s", namespace),
		},
		[]string{"status", "type"},
	))

	m.errorsTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: ns + "_errors_total",
			Help: fmt.Sprintf("Total errors in %s", namespace),
		},
		[]string{"error_type", "operation"},
	))

	// Default buckets: 0.005 .. 10 seconds
	m.durationSeconds = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    ns + "_duration_seconds",
			Help:    fmt.Sprintf("Operation duration in %s", namespace),
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	))

	// Buckets cover a single page up to a fully capped candidate set
	m.resultSize = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    ns + "_result_size",
			Help:    fmt.Sprintf("Result cardinality in %s", namespace),
			Buckets: []float64{0, 1, 5, 12, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"kind"},
	))

	m.inProgress = register(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: ns + "_in_progress",
			Help: fmt.Sprintf("Operations in progress in %s", namespace),
		},
		[]string{"operation"},
	))

	return m
}

// register registers c, returning the already registered collector when one
// with the same descriptor exists. Any other registration error panics, same
// as MustRegister.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// SanitizeName maps s onto the Prometheus metric name alphabet
// [a-zA-Z0-9_], replacing every other rune with an underscore and
// prefixing a leading digit.
func SanitizeName(s string) string {
	if s == "" {
		return "app"
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Namespace returns the sanitized metric prefix.
func (m *PrometheusMetrics) Namespace() string {
	return m.namespace
}

// RecordSuccess increments the success counter for a specific operation type.
//
// Example:
//
//	metrics.RecordSuccess("store_paginated")
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments both the processed counter (with status="error") and
// the detailed error counter.
//
// Example:
//
//	metrics.RecordError("base_query", "store_unavailable")
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration records the duration of an operation in seconds.
//
// Example:
//
//	start := time.Now()
//	// ... resolve page ...
//	metrics.RecordDuration("resolve", time.Since(start).Seconds())
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordResultSize records how many items an operation produced.
func (m *PrometheusMetrics) RecordResultSize(kind string, size int) {
	m.resultSize.WithLabelValues(kind).Observe(float64(size))
}

// StartOperation increments the in-progress gauge for an operation.
// Must be paired with EndOperation.
//
// Example:
//
//	metrics.StartOperation("resolve")
//	defer metrics.EndOperation("resolve")
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge for an operation.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}
