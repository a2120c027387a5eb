// Package metrics provides Prometheus metrics for tubefetch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished download jobs by result code.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubefetch",
			Name:      "jobs_total",
			Help:      "Total number of finished download jobs",
		},
		[]string{"status"},
	)

	// StageDuration measures time spent in each pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tubefetch",
			Name:      "stage_duration_seconds",
			Help:      "Duration of download pipeline stages in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		},
		[]string{"stage"},
	)

	// RetriesTotal counts retried external operations.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubefetch",
			Name:      "retries_total",
			Help:      "Total number of retried operations",
		},
		[]string{"operation"},
	)

	// QuotaRejectionsTotal counts submissions refused by the daily quota.
	QuotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tubefetch",
			Name:      "quota_rejections_total",
			Help:      "Total number of submissions rejected by the daily quota",
		},
	)

	// ActiveJobs tracks jobs currently executing on this node.
	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tubefetch",
			Name:      "active_jobs",
			Help:      "Number of download jobs currently executing",
		},
	)

	// GateWaitDuration measures how long submitters waited for a result.
	GateWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tubefetch",
			Name:      "gate_wait_seconds",
			Help:      "Time callers spent waiting for a job result",
			Buckets:   []float64{1, 5, 15, 30, 60, 180, 600, 1800, 3600},
		},
		[]string{"result"},
	)
)

// RecordJob records a finished job.
func RecordJob(status string) {
	JobsTotal.WithLabelValues(status).Inc()
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordRetry records a retry of operation.
func RecordRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

// RecordGateWait records a submitter's wait.
func RecordGateWait(result string, seconds float64) {
	GateWaitDuration.WithLabelValues(result).Observe(seconds)
}
