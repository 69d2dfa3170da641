package handler

import (
	"context"
	"io"
	"time"

	"findtrades/shared/config"
	"findtrades/shared/observability"
	"findtrades/shared/observability/types"
)

// Runner is what the platform adapters drive. *Handler implements it.
type Runner interface {
	Handle(ctx context.Context, req Request) (Response, error)
	Health(ctx context.Context) error
	Config() *config.HandlerConfig
	Worker() Worker
}

var _ Runner = (*Handler)(nil)

// Handler wraps a Worker with the middleware chain shared by every
// transport.
type Handler struct {
	worker      Worker
	obs         observability.Provider
	middlewares []Middleware
	config      *config.HandlerConfig
}

// Middleware wraps a HandlerFunc to add a cross-cutting concern.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is the function signature for handling requests.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// NewHandler creates a new handler with the given worker and configuration.
// Most callers should use the Factory instead.
func NewHandler(worker Worker, provider observability.Provider, cfg *config.HandlerConfig) *Handler {
	if cfg == nil {
		d := config.DefaultHandlerConfig()
		cfg = &d
	}
	return &Handler{
		worker:      worker,
		obs:         provider,
		config:      cfg,
		middlewares: []Middleware{},
	}
}

// Use adds middleware to the handler chain.
// Middleware is executed in the order it's added.
func (h *Handler) Use(middleware Middleware) {
	h.middlewares = append(h.middlewares, middleware)
}

// Handle processes a request through the middleware chain and worker.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	handler := h.buildHandlerChain()

	ctx = context.WithValue(ctx, types.RequestIDKey, req.ID)
	ctx = context.WithValue(ctx, types.WorkerKey, h.worker.Name())
	ctx = context.WithValue(ctx, types.PlatformKey, h.config.Platform)

	return handler(ctx, req)
}

// buildHandlerChain applies middleware in reverse order so that the first
// middleware added is the outermost layer.
func (h *Handler) buildHandlerChain() HandlerFunc {
	handler := h.workerHandler

	for i := len(h.middlewares) - 1; i >= 0; i-- {
		handler = h.middlewares[i](handler)
	}

	return handler
}

func (h *Handler) workerHandler(ctx context.Context, req Request) (Response, error) {
	return h.worker.Process(ctx, req)
}

// Health checks the health of the worker.
func (h *Handler) Health(ctx context.Context) error {
	return h.worker.Health(ctx)
}

// Config returns the handler configuration.
func (h *Handler) Config() *config.HandlerConfig {
	return h.config
}

// Worker returns the underlying worker.
func (h *Handler) Worker() Worker {
	return h.worker
}

// GracefulShutdown records shutdown metrics and closes the given resources
// in order. Errors from closers are logged and do not stop the sequence.
func GracefulShutdown(ctx context.Context, logger observability.Logger, metrics observability.Metrics, startTime time.Time, closers ...io.Closer) {
	metrics.RecordSuccess("shutdown_initiated")

	logger.Info(ctx, "Shutting down gracefully", observability.Fields{
		"uptime_seconds": time.Since(startTime).Seconds(),
	})

	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			logger.Error(ctx, "Failed to close resource", err, nil)
			metrics.RecordError("shutdown", "close_failed")
		}
	}

	metrics.RecordDuration("service_uptime", time.Since(startTime).Seconds())
	metrics.RecordSuccess("shutdown_complete")

	logger.Info(ctx, "Shutdown complete", nil)
}
