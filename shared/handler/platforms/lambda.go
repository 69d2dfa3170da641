package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"findtrades/shared/handler"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
)

// LambdaAdapter adapts a handler to the AWS Lambda runtime. It accepts API
// Gateway proxy events for queries and SQS batches for queued work.
type LambdaAdapter struct {
	handler handler.Runner
	config  *LambdaConfig
}

// LambdaConfig contains Lambda-specific configuration
type LambdaConfig struct {
	// ProcessingTimeout for individual SQS messages
	ProcessingTimeout time.Duration
	// EnablePartialBatchFailure allows reporting individual message failures
	EnablePartialBatchFailure bool
}

// NewLambdaAdapter creates a new Lambda adapter
func NewLambdaAdapter(h handler.Runner, config *LambdaConfig) *LambdaAdapter {
	if config == nil {
		config = DefaultLambdaConfig()
	}
	return &LambdaAdapter{
		handler: h,
		config:  config,
	}
}

// DefaultLambdaConfig returns default Lambda configuration
func DefaultLambdaConfig() *LambdaConfig {
	return &LambdaConfig{
		ProcessingTimeout:         30 * time.Second,
		EnablePartialBatchFailure: true,
	}
}

// Start begins the Lambda runtime handler
func (a *LambdaAdapter) Start() {
	lambda.Start(a.HandleEvent)
}

// eventProbe carries just enough fields to tell event shapes apart.
type eventProbe struct {
	HTTPMethod string            `json:"httpMethod"`
	Records    []json.RawMessage `json:"Records"`
}

// HandleEvent routes the raw event to the matching handler.
func (a *LambdaAdapter) HandleEvent(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var probe eventProbe
	if err := json.Unmarshal(event, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	switch {
	case probe.HTTPMethod != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(event, &req); err != nil {
			return nil, fmt.Errorf("failed to decode API Gateway event: %w", err)
		}
		return a.HandleAPIGateway(ctx, req)

	case len(probe.Records) > 0:
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(event, &sqsEvent); err != nil {
			return nil, fmt.Errorf("failed to decode SQS event: %w", err)
		}
		return a.handleSQSEvent(ctx, sqsEvent)
	}

	return nil, fmt.Errorf("unsupported event type")
}

// HandleAPIGateway serves an API Gateway proxy request.
func (a *LambdaAdapter) HandleAPIGateway(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := map[string]string{"Content-Type": "application/json"}

	if isHealthPath(event.Path) {
		status, body := 200, `{"status":"healthy"}`
		if err := a.handler.Health(ctx); err != nil {
			errBody, _ := json.Marshal(map[string]string{"status": "unhealthy", "error": err.Error()})
			status, body = 503, string(errBody)
		}
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: body}, nil
	}

	req := a.buildRequestFromAPIGateway(event)
	resp, err := a.handler.Handle(ctx, req)
	if err != nil && resp.Error == nil {
		resp = handler.NewErrorResponse(req.ID, handler.CodeInternal, "Request processing failed", err.Error())
	}

	body, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to encode response: %w", marshalErr)
	}

	headers["X-Request-ID"] = req.ID
	return events.APIGatewayProxyResponse{
		StatusCode: StatusCode(resp),
		Headers:    headers,
		Body:       string(body),
	}, nil
}

func (a *LambdaAdapter) buildRequestFromAPIGateway(event events.APIGatewayProxyRequest) handler.Request {
	metadata := map[string]string{
		"http_method": event.HTTPMethod,
		"http_path":   event.Path,
	}
	for key, value := range event.QueryStringParameters {
		metadata["query_"+key] = value
	}
	if event.RequestContext.RequestID != "" {
		metadata["apigw_request_id"] = event.RequestContext.RequestID
	}

	requestID := headerValue(event.Headers, "X-Request-ID")
	if requestID == "" {
		requestID = event.RequestContext.RequestID
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	if traceID := headerValue(event.Headers, "X-Trace-ID"); traceID != "" {
		metadata["trace_id"] = traceID
	}

	requestType := strings.Trim(event.Path, "/")
	if idx := strings.Index(requestType, "/"); idx > 0 {
		requestType = requestType[:idx]
	}
	if requestType == "" {
		requestType = strings.ToLower(event.HTTPMethod)
	}

	return handler.Request{
		ID:        requestID,
		Source:    handler.PlatformLambda,
		Type:      requestType,
		Payload:   json.RawMessage(event.Body),
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// handleSQSEvent processes SQS events with support for batch processing
func (a *LambdaAdapter) handleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{},
	}

	for _, record := range event.Records {
		if err := a.processSQSMessage(ctx, record); err != nil {
			if !a.config.EnablePartialBatchFailure {
				return response, err
			}
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return response, nil
}

// processSQSMessage processes a single SQS message. Only retryable
// failures are reported back so the queue redelivers them.
func (a *LambdaAdapter) processSQSMessage(ctx context.Context, record events.SQSMessage) error {
	request := a.buildRequestFromSQS(record)

	if a.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.ProcessingTimeout)
		defer cancel()
	}

	response, err := a.handler.Handle(ctx, request)
	if err != nil {
		return fmt.Errorf("handler error: %w", err)
	}

	if !response.Success && response.Error != nil && response.Error.Retryable {
		return fmt.Errorf("retryable error: %s", response.Error.Message)
	}

	return nil
}

// buildRequestFromSQS converts SQS message to handler.Request
func (a *LambdaAdapter) buildRequestFromSQS(record events.SQSMessage) handler.Request {
	metadata := make(map[string]string)
	for key, attr := range record.MessageAttributes {
		if attr.StringValue != nil {
			metadata[key] = *attr.StringValue
		}
	}

	metadata["sqs_message_id"] = record.MessageId
	metadata["sqs_event_source"] = record.EventSource

	var payload json.RawMessage
	if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
		// not JSON, wrap as string
		payload, _ = json.Marshal(record.Body)
	}

	requestType := "sqs_message"
	if msgType, ok := metadata["type"]; ok {
		requestType = msgType
	}

	requestID := record.MessageId
	if id, ok := metadata["request_id"]; ok {
		requestID = id
	}

	return handler.Request{
		ID:        requestID,
		Source:    "sqs",
		Type:      requestType,
		Payload:   payload,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

func isHealthPath(path string) bool {
	switch path {
	case "/health", "/healthz", "/ready", "/readyz", "/live", "/livez":
		return true
	}
	return false
}

// headerValue looks a header up case-insensitively; API Gateway does not
// canonicalize header names.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
