// Package worker adapts the listing engine and the reference cache to the
// shared handler pipeline.
package worker

import (
	"context"
	"errors"
	"time"

	"findtrades/shared/handler"
	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/domain"
)

// RequestTypeListings is the request type of listing queries.
const RequestTypeListings = "listings"

// Querier resolves one page of listings.
type Querier interface {
	Query(ctx context.Context, filters domain.FilterSet) (domain.Page, error)
}

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueryRequest is the payload of a listing query.
type QueryRequest struct {
	Filters domain.FilterSet `json:"filters"`
}

// ListingsWorker implements handler.Worker for listing queries.
type ListingsWorker struct {
	engine  Querier
	db      Pinger
	logger  observability.Logger
	metrics observability.Metrics
}

// NewListingsWorker creates the query worker. db may be nil.
func NewListingsWorker(engine Querier, db Pinger, provider observability.Provider) *ListingsWorker {
	return &ListingsWorker{
		engine:  engine,
		db:      db,
		logger:  provider.Logger("worker.listings"),
		metrics: provider.Metrics("worker"),
	}
}

// Name returns the worker name
func (w *ListingsWorker) Name() string {
	return RequestTypeListings
}

// Process decodes the filter set, runs the engine and encodes the page.
func (w *ListingsWorker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	w.metrics.StartOperation("worker_process")
	defer w.metrics.EndOperation("worker_process")

	startTime := time.Now()
	defer func() {
		w.metrics.RecordDuration("worker_process", time.Since(startTime).Seconds())
	}()

	var req QueryRequest
	if err := request.Unmarshal(&req); err != nil {
		w.metrics.RecordError("worker_process", "invalid_payload")
		return handler.NewErrorResponse(
			request.ID,
			domain.CodeInvalidFilter,
			"Failed to parse listing query",
			err.Error(),
		), nil
	}

	page, err := w.engine.Query(ctx, req.Filters)
	if err != nil {
		return w.errorResponse(ctx, request, err), nil
	}

	response, err := handler.NewSuccessResponse(request.ID, page)
	if err != nil {
		w.metrics.RecordError("worker_process", "response_creation")
		return handler.NewErrorResponse(request.ID, handler.CodeInternal, "Failed to encode listings page", err.Error()), nil
	}
	response.Metadata[handler.MetaStrategy] = string(page.Strategy)
	if page.Degraded {
		response.Metadata[handler.MetaDegraded] = "true"
	}

	w.metrics.RecordSuccess("worker_process")
	w.logger.Info(ctx, "Listing query served", observability.Fields{
		"request_id": request.ID,
		"strategy":   page.Strategy,
		"page":       page.Page,
		"listings":   len(page.Listings),
		"degraded":   page.Degraded,
	})
	return response, nil
}

// errorResponse maps engine errors onto response codes.
func (w *ListingsWorker) errorResponse(ctx context.Context, request handler.Request, err error) handler.Response {
	var domainErr *domain.DomainError
	switch {
	case errors.As(err, &domainErr):
		w.metrics.RecordError("worker_process", domainErr.Code)
		w.logger.Error(ctx, "Listing query failed", err, observability.Fields{
			"request_id": request.ID,
			"code":       domainErr.Code,
		})
		resp := handler.NewErrorResponse(request.ID, domainErr.Code, domainErr.Message, err.Error())
		resp.Error.Retryable = domainErr.Retryable
		return resp

	case errors.Is(err, context.DeadlineExceeded):
		w.metrics.RecordError("worker_process", "timeout")
		return handler.NewErrorResponse(request.ID, handler.CodeTimeout, "Listing query timed out", err.Error())

	case errors.Is(err, context.Canceled):
		w.metrics.RecordError("worker_process", "cancelled")
		return handler.NewErrorResponse(request.ID, handler.CodeCancelled, "Listing query was cancelled", err.Error())

	default:
		w.metrics.RecordError("worker_process", "processing_error")
		w.logger.Error(ctx, "Listing query failed", err, observability.Fields{"request_id": request.ID})
		return handler.NewErrorResponse(request.ID, handler.CodeInternal, "Failed to resolve listings", err.Error())
	}
}

// Health pings the database when one is configured.
func (w *ListingsWorker) Health(ctx context.Context) error {
	if w.db == nil {
		return nil
	}
	if err := w.db.Ping(ctx); err != nil {
		w.metrics.RecordError("health_check", "database")
		return err
	}
	w.metrics.RecordSuccess("health_check")
	return nil
}
