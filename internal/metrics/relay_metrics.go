package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics содержит метрики публикации outbox.
type RelayMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
	batchDuration    prometheus.Histogram
}

// NewRelayMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewRelayMetrics() *RelayMetrics {
	return NewRelayMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewRelayMetricsWithRegisterer создаёт метрики в указанном registerer.
func NewRelayMetricsWithRegisterer(registerer prometheus.Registerer) *RelayMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &RelayMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordering_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ordering_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ordering_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		batchDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ordering_outbox_batch_duration_seconds",
			Help:    "Duration of one outbox polling cycle in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordAttempt увеличивает счётчик попыток с результатом result
// (sent, retry_error, failed, dlq_failed).
func (m *RelayMetrics) RecordAttempt(result string) {
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *RelayMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	m.pendingRecords.Set(float64(pending))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestPendingAge.Set(oldestAge.Seconds())
}

// RecordBatch записывает длительность цикла опроса.
func (m *RelayMetrics) RecordBatch(duration time.Duration) {
	m.batchDuration.Observe(duration.Seconds())
}
