// Package metrics provides Prometheus metrics for the data quality service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ValidationFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "validation",
			Name:      "findings_total",
			Help:      "Total number of failing validation findings by rule and severity",
		},
		[]string{"entity_type", "rule", "severity"},
	)

	ValidationRuleFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "validation",
			Name:      "rule_faults_total",
			Help:      "Total number of validation rules that failed to execute",
		},
		[]string{"rule"},
	)

	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of imported rows by outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	ImportJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "job_duration_seconds",
			Help:      "Duration of import jobs in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"entity_type", "status"},
	)

	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of entity merges by strategy and outcome",
		},
		[]string{"entity_type", "strategy", "outcome"},
	)

	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "duration_seconds",
			Help:      "Duration of merge transactions in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"entity_type"},
	)

	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Total number of job status transitions",
		},
		[]string{"type", "status"},
	)

	JobsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "swept_total",
			Help:      "Total number of finished jobs deleted by the retention sweep",
		},
	)

	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"type", "status"},
	)

	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published to Kafka",
		},
		[]string{"event_type", "outcome"},
	)
)

func RecordFinding(entityType, rule, severity string) {
	ValidationFindingsTotal.WithLabelValues(entityType, rule, severity).Inc()
}

func RecordRuleFault(rule string) {
	ValidationRuleFaultsTotal.WithLabelValues(rule).Inc()
}

func RecordImportRow(entityType, outcome string) {
	ImportRowsTotal.WithLabelValues(entityType, outcome).Inc()
}

func RecordImportJob(entityType, status string, duration time.Duration) {
	ImportJobDuration.WithLabelValues(entityType, status).Observe(duration.Seconds())
}

func RecordMerge(entityType, strategy, outcome string, duration time.Duration) {
	MergesTotal.WithLabelValues(entityType, strategy, outcome).Inc()
	MergeDuration.WithLabelValues(entityType).Observe(duration.Seconds())
}

func RecordJobTransition(jobType, status string) {
	JobTransitionsTotal.WithLabelValues(jobType, status).Inc()
}

func RecordJobsSwept(n int) {
	JobsSweptTotal.Add(float64(n))
}

func RecordQueueJob(jobType, status string) {
	QueueJobsProcessed.WithLabelValues(jobType, status).Inc()
}

func RecordEvent(eventType, outcome string) {
	EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}
