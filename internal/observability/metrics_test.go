package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/observability/metrics"
)

func TestMetricsHandlerExposesComponentMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Pipeline.RecordClip(metrics.ClipProcessed)
	m.Pipeline.RecordCycle(time.Second, nil)
	m.HTTP.RecordRequest(http.MethodGet, "/api/config", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `pipeline_clips_total{outcome="processed"} 1`)
	assert.Contains(t, text, "pipeline_cycle_duration_seconds")
	assert.Contains(t, text, `http_requests_total{method="GET",path="/api/config",status_code="200"} 1`)
	assert.Contains(t, text, "go_goroutines")
}

func TestNewMetricsIndependentRegistries(t *testing.T) {
	t.Parallel()

	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)
	assert.NotSame(t, a.Registry(), b.Registry())
}
