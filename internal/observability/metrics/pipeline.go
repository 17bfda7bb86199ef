// Package metrics provides the Prometheus collectors used by BirdNET-Scout components.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Clip outcome label values.
const (
	ClipProcessed = "processed"
	ClipFailed    = "failed"
	ClipRejected  = "rejected"
	ClipSkipped   = "skipped"
)

// PipelineMetrics tracks the detection pipeline. A nil *PipelineMetrics is
// valid and records nothing.
type PipelineMetrics struct {
	registry *prometheus.Registry

	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	clipsTotal        *prometheus.CounterVec
	detectionsSaved   prometheus.Counter
	malformedLabels   prometheus.Counter
	pendingClips      prometheus.Gauge
	classifyDuration  prometheus.Histogram
	lastCycleUnixTime prometheus.Gauge
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cycles_total",
			Help: "Total number of pipeline cycles by result",
		},
		[]string{"result"}, // result: success, error
	)

	m.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_cycle_duration_seconds",
		Help:    "Duration of a pipeline cycle",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	m.clipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_clips_total",
			Help: "Total number of clips handled by outcome",
		},
		[]string{"outcome"},
	)

	m.detectionsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_detections_saved_total",
		Help: "Total number of detections persisted",
	})

	m.malformedLabels = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_malformed_labels_total",
		Help: "Total number of model labels skipped because they could not be parsed",
	})

	m.pendingClips = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_pending_clips",
		Help: "Number of clips pending at the start of the last cycle",
	})

	m.classifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_classify_duration_seconds",
		Help:    "Time spent classifying a single clip",
		Buckets: prometheus.DefBuckets,
	})

	m.lastCycleUnixTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_last_cycle_timestamp_seconds",
		Help: "Unix time of the last completed cycle",
	})
}

// RecordCycle records a finished cycle.
func (m *PipelineMetrics) RecordCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.lastCycleUnixTime.SetToCurrentTime()
}

// RecordClip counts a clip outcome.
func (m *PipelineMetrics) RecordClip(outcome string) {
	if m == nil {
		return
	}
	m.clipsTotal.WithLabelValues(outcome).Inc()
}

// AddDetectionsSaved adds n persisted detections.
func (m *PipelineMetrics) AddDetectionsSaved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.detectionsSaved.Add(float64(n))
}

// AddMalformedLabels adds n skipped labels.
func (m *PipelineMetrics) AddMalformedLabels(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.malformedLabels.Add(float64(n))
}

// SetPending sets the pending clip gauge.
func (m *PipelineMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingClips.Set(float64(n))
}

// ObserveClassify records time spent in the classifier for one clip.
func (m *PipelineMetrics) ObserveClassify(d time.Duration) {
	if m == nil {
		return
	}
	m.classifyDuration.Observe(d.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.cyclesTotal.Describe(ch)
	ch <- m.cycleDuration.Desc()
	m.clipsTotal.Describe(ch)
	ch <- m.detectionsSaved.Desc()
	ch <- m.malformedLabels.Desc()
	ch <- m.pendingClips.Desc()
	ch <- m.classifyDuration.Desc()
	ch <- m.lastCycleUnixTime.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.cyclesTotal.Collect(ch)
	ch <- m.cycleDuration
	m.clipsTotal.Collect(ch)
	ch <- m.detectionsSaved
	ch <- m.malformedLabels
	ch <- m.pendingClips
	ch <- m.classifyDuration
	ch <- m.lastCycleUnixTime
}
