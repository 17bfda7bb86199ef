package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks observation notifications.
type NotificationMetrics struct {
	registry *prometheus.Registry

	sentTotal       *prometheus.CounterVec
	suppressedTotal prometheus.Counter
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.sentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Total number of notification deliveries by status",
		},
		[]string{"status"}, // status: success, error
	)
	m.suppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_suppressed_total",
		Help: "Total number of observations not notified because they were already announced",
	})
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordSend counts one delivery.
func (m *NotificationMetrics) RecordSend(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sentTotal.WithLabelValues("error").Inc()
		return
	}
	m.sentTotal.WithLabelValues("success").Inc()
}

// RecordSuppressed counts one deduplicated observation.
func (m *NotificationMetrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.suppressedTotal.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.sentTotal.Describe(ch)
	ch <- m.suppressedTotal.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.sentTotal.Collect(ch)
	ch <- m.suppressedTotal
}
