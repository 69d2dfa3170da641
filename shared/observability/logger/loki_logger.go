// Package logger writes line-delimited JSON log entries shaped for Loki:
// a fixed set of top-level labels, the correlation ids found in the
// context, and free-form fields.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"sync"
	"time"

	"findtrades/shared/observability/types"
)

// LogLevel is the severity of an entry. Higher is more severe.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

// ParseLevel maps a configured level name onto a LogLevel. Unknown names
// fall back to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// contextKeys are copied from the context into every entry when present.
var contextKeys = []types.ContextKey{
	types.TraceIDKey,
	types.SpanIDKey,
	types.RequestIDKey,
	types.RetryAttemptKey,
}

// sink is the destination shared by a logger and everything derived from
// it with WithFields.
type sink struct {
	mu          sync.Mutex
	out         io.Writer
	service     string
	environment string
	hostname    string
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(line)
}

// LokiLogger implements types.Logger.
type LokiLogger struct {
	sink   *sink
	min    LogLevel
	fields types.Fields
}

// New creates a logger writing to output, or os.Stdout when output is nil.
//
//	log := New("findtrades", "production", "info", os.Stdout, types.Fields{"version": "1.4.0"})
func New(serviceName, environment, logLevel string, output io.Writer, additionalFields types.Fields) *LokiLogger {
	if output == nil {
		output = os.Stdout
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	return &LokiLogger{
		sink: &sink{
			out:         output,
			service:     serviceName,
			environment: environment,
			hostname:    hostname,
		},
		min:    ParseLevel(logLevel),
		fields: additionalFields,
	}
}

func (l *LokiLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, DebugLevel, msg, nil, fields)
}

func (l *LokiLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, InfoLevel, msg, nil, fields)
}

func (l *LokiLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	l.log(ctx, WarnLevel, msg, nil, fields)
}

// Error logs at error level. err contributes its message and dynamic type.
func (l *LokiLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	l.log(ctx, ErrorLevel, msg, err, fields)
}

// WithFields returns a child logger that adds fields to every entry. The
// child writes through the same sink as its parent.
func (l *LokiLogger) WithFields(fields types.Fields) types.Logger {
	merged := make(types.Fields, len(l.fields)+len(fields))
	maps.Copy(merged, l.fields)
	maps.Copy(merged, fields)
	return &LokiLogger{sink: l.sink, min: l.min, fields: merged}
}

func (l *LokiLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields types.Fields) {
	if level < l.min {
		return
	}

	entry := make(types.Fields, 10+len(l.fields)+len(fields))
	maps.Copy(entry, l.fields)
	maps.Copy(entry, fields)

	if ctx != nil {
		for _, key := range contextKeys {
			if v := ctx.Value(key); v != nil {
				entry[string(key)] = v
			}
		}
	}
	if err != nil {
		entry["error"] = err.Error()
		entry["error_type"] = fmt.Sprintf("%T", err)
	}

	// labels win over caller fields of the same name
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["service"] = l.sink.service
	entry["env"] = l.sink.environment
	entry["hostname"] = l.sink.hostname
	entry["message"] = msg

	line, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		// keep the entry, drop the fields that could not be encoded
		line, _ = json.Marshal(types.Fields{
			"timestamp":         entry["timestamp"],
			"level":             entry["level"],
			"service":           l.sink.service,
			"env":               l.sink.environment,
			"hostname":          l.sink.hostname,
			"message":           msg,
			"log_marshal_error": marshalErr.Error(),
		})
	}
	l.sink.write(append(line, '\n'))
}
