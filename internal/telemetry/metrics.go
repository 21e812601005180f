package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики агента.
var (
	// JobsTotal — количество выполненных jobs по результату.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabrica",
		Subsystem: "agent",
		Name:      "jobs_total",
		Help:      "Number of executed jobs by terminal result.",
	}, []string{"result"})

	// JobDuration — длительность выполнения jobs.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fabrica",
		Subsystem: "agent",
		Name:      "job_duration_seconds",
		Help:      "Job execution duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// QueueRecordsDropped — timeline-записи, отброшенные очередью.
	QueueRecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fabrica",
		Subsystem: "agent",
		Name:      "queue_records_dropped_total",
		Help:      "Timeline records dropped due to a full queue buffer.",
	})
)

// ObserveJob фиксирует завершение job в метриках.
func ObserveJob(result string, duration time.Duration) {
	JobsTotal.WithLabelValues(result).Inc()
	JobDuration.Observe(duration.Seconds())
}
