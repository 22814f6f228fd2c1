// Package metrics holds the handful of Prometheus series the Worker
// Loop and Callback Reporter actually populate. Trimmed from the
// teacher's pkg/metrics (which carries one counter/histogram per
// bounded context in the full platform) down to the three series this
// engine's own control flow touches; exposed on the worker binary's
// /metrics endpoint alongside the Go runtime collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessedTotal counts terminal Worker Loop outcomes by status
	// ("completed" or "failed"); incremented at worker.go's two terminal
	// transitions.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_jobs_processed_total",
			Help: "Total number of execution jobs reaching a terminal status, by status.",
		},
		[]string{"status"},
	)

	// RetriesTotal counts requeues after a handler failure, incremented
	// once per requeue in worker.go.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_job_retries_total",
			Help: "Total number of job requeues after a handler failure.",
		},
	)

	// CallbackLatencySeconds observes the duration of each status-update
	// callback POST to the orchestrator, success or swallowed failure
	// alike, from callback.go.
	CallbackLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_callback_latency_seconds",
			Help:    "Latency of the status-update callback POST to the orchestrator.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
