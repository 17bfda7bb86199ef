// Package logger is the structured logger shared by every BirdNET-Scout
// package. It wraps log/slog with module scoping and typed fields.
//
// Packages keep a lazily built module logger:
//
//	var (
//		serviceLogger logger.Logger
//		initOnce      sync.Once
//	)
//
//	func GetLogger() logger.Logger {
//		initOnce.Do(func() {
//			serviceLogger = logger.Global().Module("analysis")
//		})
//		return serviceLogger
//	}
//
// Console output is text without timestamps, file output is one JSON object
// per line:
//
//	{"time":"2023-11-15T08:00:00Z","level":"INFO","msg":"Cycle completed","module":"analysis","pending":3}
package logger

import (
	"context"
	"time"
)

// LogLevel is a configured severity name.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is one structured key/value pair.
type Field struct {
	Key   string
	Value any
}

// Logger is implemented by module loggers. A nil module logger is silent.
type Logger interface {
	// Module returns a child logger named "<parent>.<name>".
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
	// WithContext adds the trace ID stored in ctx, if any.
	WithContext(ctx context.Context) Logger

	Flush() error
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Float64 values are rounded to three decimals on output.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Time values are rendered in the configured logging timezone.
func Time(key string, value time.Time) Field { return Field{Key: key, Value: value} }

// Duration is rendered like "1.5s", rounded to milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.Round(time.Millisecond).String()}
}

// Error always uses the key "error". A nil error logs a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Any logs value through slog.Any.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

const (
	errorKey   = "error"
	moduleKey  = "module"
	traceIDKey = "trace_id"
)

type traceIDContextKey struct{}

// WithTraceID returns a context whose loggers (via WithContext) tag entries
// with traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}
