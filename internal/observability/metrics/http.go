package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the API server
type HTTPMetrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	ingestedDetections  prometheus.Counter
	heartbeatsTotal     *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers new HTTP metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"}, // path is the route pattern, not the raw URL
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.ingestedDetections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_ingested_detections_total",
		Help: "Total number of detections accepted through the ingestion endpoint",
	})

	m.heartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_heartbeats_total",
			Help: "Total number of service heartbeats received",
		},
		[]string{"service"},
	)
}

// RecordRequest records one served request.
func (m *HTTPMetrics) RecordRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// AddIngested adds n detections accepted over HTTP.
func (m *HTTPMetrics) AddIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestedDetections.Add(float64(n))
}

// RecordHeartbeat counts a heartbeat from service.
func (m *HTTPMetrics) RecordHeartbeat(service string) {
	if m == nil {
		return
	}
	m.heartbeatsTotal.WithLabelValues(service).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
	ch <- m.ingestedDetections.Desc()
	m.heartbeatsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
	ch <- m.ingestedDetections
	m.heartbeatsTotal.Collect(ch)
}
