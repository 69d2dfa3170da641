package platforms

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"findtrades/shared/handler"

	"github.com/google/uuid"
)

const defaultMaxRequestSize = 1 << 20

var (
	requestIDHeaders = []string{"X-Request-ID", "X-Correlation-ID", "Request-ID"}

	// forwardedHeaders are copied into request metadata as header_<name>.
	forwardedHeaders = []string{"Content-Type", "Accept", "User-Agent", "X-Forwarded-For", "X-Real-IP", "Authorization"}

	statusByCode = map[string]int{
		handler.CodeValidation:  http.StatusBadRequest,
		handler.CodeInvalidReq:  http.StatusBadRequest,
		"INVALID_FILTER":        http.StatusBadRequest,
		"NOT_FOUND":             http.StatusNotFound,
		"UNAUTHORIZED":          http.StatusUnauthorized,
		"FORBIDDEN":             http.StatusForbidden,
		"RATE_LIMITED":          http.StatusTooManyRequests,
		handler.CodeTimeout:     http.StatusGatewayTimeout,
		handler.CodeCancelled:   499,
		handler.CodeUnavailable: http.StatusServiceUnavailable,
		"STORE_UNAVAILABLE":     http.StatusServiceUnavailable,
	}
)

// HTTPAdapter serves a handler.Runner over net/http. POST bodies are
// requests; the health paths answer GET.
type HTTPAdapter struct {
	handler handler.Runner
}

func NewHTTPAdapter(h handler.Runner) *HTTPAdapter {
	return &HTTPAdapter{handler: h}
}

// ServeHTTP implements http.Handler.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isHealthPath(r.URL.Path) {
		a.handleHealth(w, r)
		return
	}

	requestID := a.extractRequestID(r)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		a.write(w, http.StatusMethodNotAllowed, handler.NewErrorResponse(
			requestID, handler.CodeInvalidReq, "Method not allowed", r.Method))
		return
	}

	body, err := a.readBody(w, r)
	if err != nil {
		a.write(w, 0, handler.NewErrorResponse(
			requestID, handler.CodeInvalidReq, "Failed to read request body", err.Error()))
		return
	}

	req := handler.Request{
		ID:        requestID,
		Source:    handler.PlatformHTTP,
		Type:      a.extractRequestType(r),
		Payload:   json.RawMessage(body),
		Metadata:  a.extractMetadata(r),
		Timestamp: time.Now().UTC(),
	}
	resp, err := a.handler.Handle(r.Context(), req)

	// a structured failure wins over the bare error
	if err != nil && resp.Error == nil {
		resp = handler.NewErrorResponse(req.ID, handler.CodeInternal, "Request processing failed", err.Error())
	}
	if resp.ID == "" {
		resp.ID = req.ID
	}
	for key, value := range resp.Metadata {
		w.Header().Set(metadataHeader(key), value)
	}
	a.write(w, 0, resp)
}

func (a *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body := map[string]any{
		"worker": a.handler.Worker().Name(),
		"time":   time.Now().UTC(),
	}
	status := http.StatusOK
	if err := a.handler.Health(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	} else {
		body["status"] = "healthy"
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *HTTPAdapter) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := a.handler.Config().MaxRequestSize
	if limit <= 0 {
		limit = defaultMaxRequestSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func (a *HTTPAdapter) extractRequestID(r *http.Request) string {
	for _, header := range requestIDHeaders {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}
	return uuid.New().String()
}

// extractRequestType takes the X-Request-Type header, else the first path
// segment, else the lowercased method.
func (a *HTTPAdapter) extractRequestType(r *http.Request) string {
	if reqType := r.Header.Get("X-Request-Type"); reqType != "" {
		return reqType
	}
	if segment, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/"); segment != "" {
		return segment
	}
	return strings.ToLower(r.Method)
}

func (a *HTTPAdapter) extractMetadata(r *http.Request) map[string]string {
	metadata := map[string]string{
		"http_method": r.Method,
		"http_path":   r.URL.Path,
		"http_host":   r.Host,
	}

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			metadata["query_"+key] = values[0]
		}
	}

	for _, header := range forwardedHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		if header == "Authorization" {
			value = redact(value)
		}
		metadata["header_"+strings.ToLower(strings.ReplaceAll(header, "-", "_"))] = value
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		metadata["trace_id"] = traceID
	}
	return metadata
}

// write encodes resp with status, or the status derived from resp when
// status is 0.
func (a *HTTPAdapter) write(w http.ResponseWriter, status int, resp handler.Response) {
	if status == 0 {
		status = StatusCode(resp)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", resp.ID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// StatusCode maps a response onto an HTTP status.
func StatusCode(resp handler.Response) int {
	switch {
	case resp.Success:
		return http.StatusOK
	case resp.Error == nil:
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[resp.Error.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// metadataHeader turns a metadata key such as "trace_id" into "X-Trace-Id".
func metadataHeader(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return "X-" + strings.Join(parts, "-")
}

func redact(auth string) string {
	if strings.HasPrefix(auth, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	return "[REDACTED]"
}
