package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/birdnet-scout/internal/logger"
)

func TestLogLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		configLevel   logger.LogLevel
		logFunc       func(l logger.Logger, msg string)
		shouldContain bool
	}{
		{"debug in debug level", logger.LogLevelDebug, func(l logger.Logger, m string) { l.Debug(m) }, true},
		{"debug in info level", logger.LogLevelInfo, func(l logger.Logger, m string) { l.Debug(m) }, false},
		{"info in info level", logger.LogLevelInfo, func(l logger.Logger, m string) { l.Info(m) }, true},
		{"info in warn level", logger.LogLevelWarn, func(l logger.Logger, m string) { l.Info(m) }, false},
		{"warn in info level", logger.LogLevelInfo, func(l logger.Logger, m string) { l.Warn(m) }, true},
		{"error in error level", logger.LogLevelError, func(l logger.Logger, m string) { l.Error(m) }, true},
		{"trace in debug level", logger.LogLevelDebug, func(l logger.Logger, m string) { l.Trace(m) }, false},
		{"trace in trace level", logger.LogLevelTrace, func(l logger.Logger, m string) { l.Trace(m) }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			log := logger.NewSlogLogger(buf, tc.configLevel, time.UTC)

			tc.logFunc(log, "level check message")

			if tc.shouldContain {
				assert.Contains(t, buf.String(), "level check message")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestModuleLoggerFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	log.Module("analysis").Module("queue").
		With(logger.String("clip", "1700000000_12.wav")).
		Info("clip processed", logger.Int("detections", 3), logger.Float64("confidence", 0.87654))

	out := buf.String()
	assert.Contains(t, out, "module=analysis.queue")
	assert.Contains(t, out, "clip=1700000000_12.wav")
	assert.Contains(t, out, "detections=3")
	assert.Contains(t, out, "confidence=0.877")
	assert.NotContains(t, out, "time=")
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	parent := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC).Module("datastore")
	_ = parent.With(logger.String("child", "yes"))

	parent.Info("parent only")
	assert.NotContains(t, buf.String(), "child=yes")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "abc-123")
	log.WithContext(ctx).Info("request handled")
	assert.Contains(t, buf.String(), "trace_id=abc-123")

	buf.Reset()
	log.WithContext(context.Background()).Info("no trace")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestErrorFieldNil(t *testing.T) {
	t.Parallel()

	f := logger.Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "scout.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: logPath, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("api").Info("route registered", logger.String("path", "/api/detections"))
	require.NoError(t, cl.Close())

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "route registered", entry["msg"])
	assert.Equal(t, "api", entry["module"])
	assert.Equal(t, "/api/detections", entry["path"])
}

func TestCentralLoggerInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus_Mons"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestBufferedFileWriterCloseIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "buffered.log")
	w, err := logger.NewBufferedFileWriter(path, logger.WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("after close\n"))
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestGormLoggerAdapterTrace(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	adapter := logger.NewGormLoggerAdapter(logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC), 50*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	adapter.Trace(context.Background(), time.Now(), sql, nil)
	assert.Contains(t, buf.String(), "sql query")

	buf.Reset()
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	assert.Contains(t, buf.String(), "slow query")

	buf.Reset()
	adapter.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.False(t, strings.Contains(buf.String(), "query error"))
}

func TestCentralLoggerModuleLevels(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "scout.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: logPath, Level: "trace"},
		ModuleLevels: map[string]string{"datastore": "trace"},
	})
	require.NoError(t, err)

	cl.Module("datastore").Trace("select detections")
	cl.Module("api").Debug("request body")
	cl.Module("api").Info("route registered")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"level":"TRACE"`)
	assert.Contains(t, out, "select detections")
	assert.Contains(t, out, "route registered")
	assert.NotContains(t, out, "request body")
}

func TestTimeFieldUsesTimezone(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.FixedZone("UTC-6", -6*60*60))

	log.Info("observation confirmed", logger.Time("at", time.Date(2023, 11, 15, 8, 0, 0, 0, time.UTC)))
	assert.Contains(t, buf.String(), "at=2023-11-15T02:00:00-06:00")
}
