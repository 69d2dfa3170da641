package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"findtrades/shared/observability/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"WARNING", WarnLevel},
		{" Debug ", DebugLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
		{LogLevel(99), "unknown"},
		{LogLevel(-1), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestLokiLogger_LogLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		logMethod func(*LokiLogger, context.Context)
		shouldLog bool
	}{
		{
			name:     "debug level logs debug",
			logLevel: "debug",
			logMethod: func(l *LokiLogger, ctx context.Context) {
				l.Debug(ctx, "test", nil)
			},
			shouldLog: true,
		},
		{
			name:     "info level skips debug",
			logLevel: "info",
			logMethod: func(l *LokiLogger, ctx context.Context) {
				l.Debug(ctx, "test", nil)
			},
			shouldLog: false,
		},
		{
			name:     "error level skips warn",
			logLevel: "error",
			logMethod: func(l *LokiLogger, ctx context.Context) {
				l.Warn(ctx, "test", nil)
			},
			shouldLog: false,
		},
		{
			name:     "error level logs error",
			logLevel: "error",
			logMethod: func(l *LokiLogger, ctx context.Context) {
				l.Error(ctx, "test", errors.New("error"), nil)
			},
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New("test", "test", tt.logLevel, &buf, nil)

			tt.logMethod(logger, context.Background())

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLokiLogger_StructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("listings", "prod", "info", &buf, types.Fields{
		"version": "1.0.0",
	})

	ctx := context.WithValue(context.Background(), types.RequestIDKey, "req-123")
	ctx = context.WithValue(ctx, types.TraceIDKey, "trace-456")

	logger.Info(ctx, "Resolved page", types.Fields{
		"strategy": "store_paginated",
		"page":     0,
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "listings", entry["service"])
	assert.Equal(t, "prod", entry["env"])
	assert.Equal(t, "Resolved page", entry["message"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "trace-456", entry["trace_id"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "store_paginated", entry["strategy"])
	assert.NotEmpty(t, entry["timestamp"])
	assert.NotEmpty(t, entry["hostname"])
}

func TestLokiLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test", "test", "error", &buf, nil)

	logger.Error(context.Background(), "Base query failed", errors.New("connection refused"), types.Fields{
		"operation": "base_query",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "*errors.errorString", entry["error_type"])
	assert.Equal(t, "base_query", entry["operation"])
}

func TestLokiLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test", "test", "info", &buf, types.Fields{"version": "1"})

	scoped := logger.WithFields(types.Fields{"request_id": "req-123"})
	scoped.Info(context.Background(), "Test", types.Fields{"extra": "field"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "1", entry["version"])
	assert.Equal(t, "field", entry["extra"])

	// parent must not see the scoped fields
	buf.Reset()
	logger.Info(context.Background(), "Parent", nil)
	assert.NotContains(t, buf.String(), "req-123")
}

func TestLokiLogger_ConcurrentWritesStayLineDelimited(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test", "test", "info", &buf, nil)
	scoped := logger.WithFields(types.Fields{"chunk": true})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				logger.Info(context.Background(), "parent", types.Fields{"i": i})
			} else {
				scoped.Warn(context.Background(), "scoped", types.Fields{"i": i})
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var entry map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(line), &entry))
	}
}

func TestLokiLogger_ContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New("listings", "test", "debug", &buf, nil)

	ctx := context.WithValue(context.Background(), types.SpanIDKey, "span-1")
	ctx = context.WithValue(ctx, types.RetryAttemptKey, 2)
	logger.Debug(ctx, "Chunk fetched", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "span-1", entry["span_id"])
	assert.Equal(t, float64(2), entry["retry_attempt"])
	assert.NotContains(t, entry, "trace_id")
}

func TestLokiLogger_LabelsWinOverFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("listings", "prod", "info", &buf, types.Fields{"service": "spoofed"})

	logger.Info(context.Background(), "Resolved page", types.Fields{"level": "debug"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "listings", entry["service"])
	assert.Equal(t, "info", entry["level"])
}

func TestLokiLogger_UnencodableFieldStillLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := New("listings", "test", "info", &buf, nil)

	logger.Warn(context.Background(), "Enrichment degraded", types.Fields{"callback": func() {}})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Enrichment degraded", entry["message"])
	assert.NotEmpty(t, entry["log_marshal_error"])
	assert.NotContains(t, entry, "callback")
}
