package handler

import (
	"os"

	"findtrades/shared/config"
	"findtrades/shared/observability"
)

// Platform identifiers.
const (
	PlatformHTTP     = "http"
	PlatformLambda   = "lambda"
	PlatformRabbitMQ = "rabbitmq"
)

// Factory builds handlers with the default middleware stack.
type Factory struct {
	worker     Worker
	provider   observability.Provider
	handlerCfg config.HandlerConfig
	retryCfg   config.RetryConfig
}

// NewFactory creates a new handler factory with default configuration.
func NewFactory(worker Worker, provider observability.Provider) *Factory {
	return &Factory{
		worker:     worker,
		provider:   provider,
		handlerCfg: config.DefaultHandlerConfig(),
		retryCfg:   config.DefaultRetryConfig(),
	}
}

// WithHandlerConfig sets custom handler configuration.
func (f *Factory) WithHandlerConfig(cfg config.HandlerConfig) *Factory {
	f.handlerCfg = cfg
	return f
}

// WithRetryConfig sets custom retry configuration.
func (f *Factory) WithRetryConfig(cfg config.RetryConfig) *Factory {
	f.retryCfg = cfg
	return f
}

// Create creates a handler for the detected or configured platform.
func (f *Factory) Create() *Handler {
	cfg := f.handlerCfg
	if cfg.Platform == "" || cfg.Platform == "auto" {
		cfg.Platform = DetectPlatform()
	}

	handler := NewHandler(f.worker, f.provider, &cfg)
	f.applyDefaultMiddleware(handler)

	return handler
}

// CreateHTTP creates a handler for the HTTP server.
func (f *Factory) CreateHTTP() *Handler {
	return f.createFor(PlatformHTTP)
}

// CreateLambda creates a handler for AWS Lambda.
func (f *Factory) CreateLambda() *Handler {
	return f.createFor(PlatformLambda)
}

// CreateRabbitMQ creates a handler for a RabbitMQ consumer.
func (f *Factory) CreateRabbitMQ() *Handler {
	return f.createFor(PlatformRabbitMQ)
}

func (f *Factory) createFor(platform string) *Handler {
	cfg := f.handlerCfg
	cfg.Platform = platform

	handler := NewHandler(f.worker, f.provider, &cfg)
	f.applyDefaultMiddleware(handler)

	return handler
}

// applyDefaultMiddleware adds the standard middleware stack.
func (f *Factory) applyDefaultMiddleware(handler *Handler) {
	cfg := handler.Config()

	// outermost, catches all panics
	handler.Use(RecoveryMiddleware(f.provider))

	if cfg.Timeout > 0 {
		handler.Use(TimeoutMiddleware(cfg.Timeout))
	}

	if cfg.EnableTracing {
		handler.Use(TracingMiddleware())
	}

	if cfg.EnableMetrics {
		handler.Use(MetricsMiddleware(f.provider))
	}

	handler.Use(LoggingMiddleware(f.provider))
	handler.Use(ValidationMiddleware())

	if f.retryCfg.MaxAttempts > 0 {
		retry := f.retryCfg
		handler.Use(RetryMiddleware(&retry))
	}
}

// DetectPlatform attempts to detect the runtime platform from environment.
func DetectPlatform() string {
	if config.IsLambda() {
		return PlatformLambda
	}
	if _, exists := os.LookupEnv("AWS_LAMBDA_RUNTIME_API"); exists {
		return PlatformLambda
	}
	return PlatformHTTP
}
