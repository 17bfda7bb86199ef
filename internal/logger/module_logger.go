package logger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"time"
)

// NewSlogLogger returns a standalone text Logger on w, stdout when w is nil.
// Tests and code running before the CentralLogger exists use it.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stdout
	}
	if tz == nil {
		tz = time.Local
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{out: slog.New(newTextHandler(w, lvl, tz)), level: lvl}
}

type moduleLogger struct {
	name   string
	out    *slog.Logger
	level  slog.Level
	fields []Field
}

func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	child := m.derive(slices.Clone(m.fields))
	if m.name != "" {
		child.name = m.name + "." + name
	} else {
		child.name = name
	}
	return child
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	return m.derive(slices.Concat(m.fields, fields))
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	if id := traceIDFrom(ctx); id != "" {
		return m.With(String(traceIDKey, id))
	}
	return m
}

func (m *moduleLogger) derive(fields []Field) *moduleLogger {
	return &moduleLogger{name: m.name, out: m.out, level: m.level, fields: fields}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(traceLevel, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(parseLogLevel(string(level)), msg, fields)
}

// Flush is a no-op; the CentralLogger owns the file.
func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.name != "" {
		attrs = append(attrs, slog.String(moduleKey, m.name))
	}
	for _, f := range m.fields {
		attrs = append(attrs, toAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}
	m.out.LogAttrs(context.Background(), level, msg, attrs...)
}

func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case bool:
		return slog.Bool(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case time.Time:
		return slog.Time(f.Key, v)
	default:
		return slog.Any(f.Key, v)
	}
}
