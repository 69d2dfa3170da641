package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"findtrades/shared/config"
	"findtrades/shared/observability"
	"findtrades/shared/observability/types"

	"github.com/google/uuid"
)

// Response metadata keys set by workers and read by the pipeline.
const (
	MetaStrategy = "strategy"
	MetaDegraded = "degraded"
)

// errRequestTimeout is the cancellation cause set by TimeoutMiddleware.
var errRequestTimeout = errors.New("request timeout")

// traceHeaders are the metadata keys an incoming trace id is taken from,
// in order of preference.
var traceHeaders = []string{
	"trace_id",
	"x-trace-id",
	"x-b3-traceid",
	"x-request-id",
	"correlation-id",
}

// degraded reports whether a worker flagged the response as partially enriched.
func degraded(resp Response) bool {
	return resp.Metadata[MetaDegraded] == "true"
}

func workerFrom(ctx context.Context) string {
	if name, ok := ctx.Value(types.WorkerKey).(string); ok && name != "" {
		return name
	}
	return "unknown"
}

// LoggingMiddleware logs one line when a request arrives and one when it
// finishes. Degraded pages and business failures are logged at warn.
func LoggingMiddleware(provider observability.Provider) Middleware {
	logger := provider.Logger("handler")

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			platform, _ := ctx.Value(types.PlatformKey).(string)
			reqLogger := logger.WithFields(types.Fields{
				"request_id": req.ID,
				"type":       req.Type,
				"source":     req.Source,
				"platform":   platform,
			})

			reqLogger.Debug(ctx, "Request received", types.Fields{
				"payload_bytes": len(req.Payload),
			})

			start := time.Now()
			resp, err := next(ctx, req)
			resp.Duration = time.Since(start)

			fields := types.Fields{"elapsed_ms": resp.Duration.Milliseconds()}
			if s := resp.Metadata[MetaStrategy]; s != "" {
				fields[MetaStrategy] = s
			}

			switch {
			case err != nil:
				reqLogger.Error(ctx, "Request failed", err, fields)
			case resp.Error != nil:
				fields["error_code"] = resp.Error.Code
				fields["error_message"] = resp.Error.Message
				reqLogger.Warn(ctx, "Request rejected", fields)
			case degraded(resp):
				reqLogger.Warn(ctx, "Request served degraded", fields)
			default:
				reqLogger.Info(ctx, "Request served", fields)
			}

			return resp, err
		}
	}
}

// MetricsMiddleware counts outcomes and latency per worker.
func MetricsMiddleware(provider observability.Provider) Middleware {
	metrics := provider.Metrics("handler")

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			name := workerFrom(ctx)
			metrics.StartOperation(name)
			defer metrics.EndOperation(name)

			start := time.Now()
			resp, err := next(ctx, req)
			metrics.RecordDuration(name, time.Since(start).Seconds())

			switch {
			case err != nil:
				metrics.RecordError(name, "processing_error")
			case resp.Error != nil:
				metrics.RecordError(name, resp.Error.Code)
			case !resp.Success:
				metrics.RecordError(name, "unknown_error")
			default:
				metrics.RecordSuccess(name)
				if degraded(resp) {
					metrics.RecordSuccess(name + "_degraded")
				}
			}

			return resp, err
		}
	}
}

// RecoveryMiddleware turns a panic into an INTERNAL_ERROR response. It must
// be the outermost layer.
func RecoveryMiddleware(provider observability.Provider) Middleware {
	logger := provider.Logger("handler")
	metrics := provider.Metrics("handler")

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (resp Response, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				err = fmt.Errorf("panic recovered: %v", r)
				logger.Error(ctx, "Panic recovered", err, types.Fields{
					"request_id": req.ID,
					"worker":     workerFrom(ctx),
					"stack":      string(debug.Stack()),
				})
				metrics.RecordError("panic", "panic_recovered")

				// the panic value stays in the logs
				resp = NewErrorResponse(req.ID, CodeInternal, "An internal error occurred", "")
			}()

			return next(ctx, req)
		}
	}
}

// TracingMiddleware propagates or mints a trace id and opens a span for
// this hop. Both ids are echoed in the response metadata.
func TracingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			traceID := extractTraceID(req)
			if traceID == "" {
				traceID = uuid.New().String()
			}
			spanID := uuid.New().String()

			ctx = context.WithValue(ctx, types.TraceIDKey, traceID)
			ctx = context.WithValue(ctx, types.SpanIDKey, spanID)
			if parent, ok := req.GetMetadata("parent_span_id"); ok && parent != "" {
				ctx = context.WithValue(ctx, types.ParentSpanIDKey, parent)
			}
			req.SetMetadata("trace_id", traceID)
			req.SetMetadata("span_id", spanID)

			resp, err := next(ctx, req)
			if resp.Metadata == nil {
				resp.Metadata = make(map[string]string, 2)
			}
			resp.Metadata["trace_id"] = traceID
			resp.Metadata["span_id"] = spanID
			return resp, err
		}
	}
}

// TimeoutMiddleware bounds request processing. When the deadline passes
// first a TIMEOUT response is returned at once and the inner call winds down
// on its cancelled context.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	type outcome struct {
		resp Response
		err  error
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			ctx, cancel := context.WithTimeoutCause(ctx, timeout, errRequestTimeout)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- outcome{resp, err}
			}()

			select {
			case o := <-done:
				return o.resp, o.err
			case <-ctx.Done():
				details := fmt.Sprintf("exceeded %v", timeout)
				if !errors.Is(context.Cause(ctx), errRequestTimeout) {
					details = context.Cause(ctx).Error()
				}
				return NewErrorResponse(req.ID, CodeTimeout, "Request processing timed out", details), ctx.Err()
			}
		}
	}
}

// RetryMiddleware replays requests that failed with a transient error,
// backing off exponentially between attempts.
func RetryMiddleware(cfg *config.RetryConfig) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			var (
				resp Response
				err  error
			)
			for attempt := 0; ; attempt++ {
				resp, err = next(context.WithValue(ctx, types.RetryAttemptKey, attempt), req)
				if err == nil && resp.Success {
					return resp, nil
				}
				if !isRetryable(resp, err) || attempt == cfg.MaxAttempts {
					break
				}

				wait := time.NewTimer(calculateBackoff(attempt, cfg))
				select {
				case <-ctx.Done():
					wait.Stop()
					return NewErrorResponse(req.ID, CodeCancelled, "Request cancelled during retry", ""), ctx.Err()
				case <-wait.C:
				}
			}

			if !isRetryable(resp, err) {
				return resp, err
			}
			if err != nil {
				return resp, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxAttempts, err)
			}
			if resp.Error != nil {
				resp.Error.Details = fmt.Sprintf("Failed after %d retries", cfg.MaxAttempts)
			}
			return resp, nil
		}
	}
}

// ValidationMiddleware fills in a missing id and timestamp and rejects
// requests without a type or a JSON payload.
func ValidationMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req Request) (Response, error) {
			if req.ID == "" {
				req.ID = uuid.New().String()
			}
			if req.Timestamp.IsZero() {
				req.Timestamp = time.Now().UTC()
			}

			var message, details string
			switch {
			case req.Type == "":
				message, details = "Request type is required", "missing 'type' field"
			case len(req.Payload) == 0:
				message, details = "Request payload is required", "empty payload"
			case !json.Valid(req.Payload):
				message, details = "Invalid JSON payload", "payload must be valid JSON"
			}
			if message != "" {
				return NewErrorResponse(req.ID, CodeValidation, message, details), nil
			}

			req.SetMetadata("validated_at", time.Now().UTC().Format(time.RFC3339))
			return next(ctx, req)
		}
	}
}

// isRetryable reports whether a failed attempt is worth repeating.
// Cancellation never is.
func isRetryable(resp Response, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if resp.Error != nil {
		return resp.Error.Retryable || IsRetryableCode(resp.Error.Code)
	}
	return err != nil
}

func calculateBackoff(attempt int, cfg *config.RetryConfig) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	return time.Duration(math.Min(d, float64(cfg.MaxBackoff)))
}

func extractTraceID(req Request) string {
	for _, key := range traceHeaders {
		if v := req.Metadata[key]; v != "" {
			return v
		}
	}
	return ""
}
