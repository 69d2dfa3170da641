package worker

import (
	"context"

	"findtrades/shared/handler"
	"findtrades/shared/observability"
)

// RequestTypeInvalidation is the request type of cache invalidation messages.
const RequestTypeInvalidation = "cache_invalidation"

// Invalidator removes reference cache entries.
type Invalidator interface {
	Invalidate(key string) bool
	InvalidatePrefix(prefix string) int
}

// InvalidationMessage names the cache entries to drop.
type InvalidationMessage struct {
	Keys   []string `json:"keys,omitempty"`
	Prefix string   `json:"prefix,omitempty"`
}

// InvalidationResult reports how many entries were removed.
type InvalidationResult struct {
	Invalidated int `json:"invalidated"`
}

// InvalidationWorker implements handler.Worker for cache invalidation
// messages.
type InvalidationWorker struct {
	cache   Invalidator
	logger  observability.Logger
	metrics observability.Metrics
}

// NewInvalidationWorker creates the invalidation worker.
func NewInvalidationWorker(cache Invalidator, provider observability.Provider) *InvalidationWorker {
	return &InvalidationWorker{
		cache:   cache,
		logger:  provider.Logger("worker.invalidation"),
		metrics: provider.Metrics("worker"),
	}
}

// Name returns the worker name
func (w *InvalidationWorker) Name() string {
	return RequestTypeInvalidation
}

// Process drops the named keys and every key under the prefix.
func (w *InvalidationWorker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	var msg InvalidationMessage
	if err := request.Unmarshal(&msg); err != nil {
		w.metrics.RecordError("cache_invalidation", "invalid_payload")
		return handler.NewErrorResponse(request.ID, handler.CodeInvalidReq, "Failed to parse invalidation message", err.Error()), nil
	}
	if len(msg.Keys) == 0 && msg.Prefix == "" {
		w.metrics.RecordError("cache_invalidation", "empty_message")
		return handler.NewErrorResponse(request.ID, handler.CodeInvalidReq, "Invalidation message names no keys", ""), nil
	}

	removed := 0
	for _, key := range msg.Keys {
		if w.cache.Invalidate(key) {
			removed++
		}
	}
	if msg.Prefix != "" {
		removed += w.cache.InvalidatePrefix(msg.Prefix)
	}

	w.metrics.RecordSuccess("cache_invalidation")
	w.metrics.RecordResultSize("invalidated", removed)
	w.logger.Info(ctx, "Invalidated cache entries", observability.Fields{
		"request_id":  request.ID,
		"keys":        len(msg.Keys),
		"prefix":      msg.Prefix,
		"invalidated": removed,
	})

	return handler.NewSuccessResponse(request.ID, InvalidationResult{Invalidated: removed})
}

// Health always succeeds; the cache is in process.
func (w *InvalidationWorker) Health(ctx context.Context) error {
	return nil
}
