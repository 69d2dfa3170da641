package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is the transport-neutral envelope every platform adapter builds
// before handing work to a Worker.
type Request struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"` // http, lambda, rabbitmq
	Type      string            `json:"type"`   // worker routing key, e.g. "listings"
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Response is what a Worker returns. Exactly one of Data and Error is set.
type Response struct {
	ID          string            `json:"id"`
	Success     bool              `json:"success"`
	Data        json.RawMessage   `json:"data,omitempty"`
	Error       *ErrorResponse    `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ProcessedAt time.Time         `json:"processed_at"`
	Duration    time.Duration     `json:"duration,omitempty"`
}

// ErrorResponse is the machine-readable failure carried by a Response.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error codes produced by the shared pipeline. Workers add their own.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeInvalidReq  = "INVALID_REQUEST"
	CodeInternal    = "INTERNAL_ERROR"
	CodeTimeout     = "TIMEOUT"
	CodeCancelled   = "CANCELLED"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeUnsupported = "UNSUPPORTED_EVENT"
)

var retryableCodes = map[string]struct{}{
	CodeTimeout:         {},
	CodeUnavailable:     {},
	"NETWORK_ERROR":     {},
	"RATE_LIMITED":      {},
	"TEMPORARY_ERROR":   {},
	"GATEWAY_TIMEOUT":   {},
	"STORE_UNAVAILABLE": {},
}

// IsRetryableCode reports whether code describes a transient failure.
func IsRetryableCode(code string) bool {
	_, ok := retryableCodes[code]
	return ok
}

// NewRequest marshals payload into a request with a fresh id.
func NewRequest(requestType string, payload any) (Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Request{}, err
	}
	return Request{
		ID:        uuid.New().String(),
		Type:      requestType,
		Payload:   raw,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UTC(),
	}, nil
}

// Unmarshal decodes the payload into v.
func (r *Request) Unmarshal(v any) error {
	return json.Unmarshal(r.Payload, v)
}

func (r *Request) SetMetadata(key, value string) {
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	r.Metadata[key] = value
}

func (r *Request) GetMetadata(key string) (string, bool) {
	val, ok := r.Metadata[key]
	return val, ok
}

// Marshal encodes v as the response data.
func (r *Response) Marshal(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Data = data
	return nil
}

// Unmarshal decodes the response data into v.
func (r *Response) Unmarshal(v any) error {
	return json.Unmarshal(r.Data, v)
}

// NewErrorResponse builds a failed response. Retryable follows the code.
func NewErrorResponse(id, code, message, details string) Response {
	return Response{
		ID: id,
		Error: &ErrorResponse{
			Code:      code,
			Message:   message,
			Details:   details,
			Retryable: IsRetryableCode(code),
		},
		ProcessedAt: time.Now().UTC(),
	}
}

// NewSuccessResponse builds a successful response carrying data, which may
// be nil.
func NewSuccessResponse(id string, data any) (Response, error) {
	resp := Response{
		ID:          id,
		Success:     true,
		Metadata:    map[string]string{},
		ProcessedAt: time.Now().UTC(),
	}
	if data == nil {
		return resp, nil
	}
	if err := resp.Marshal(data); err != nil {
		return Response{}, err
	}
	return resp, nil
}
