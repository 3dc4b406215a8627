package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsEnqueued tracks jobs accepted into the queue per priority
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_enqueued_total",
			Help: "Total number of analysis jobs enqueued",
		},
		[]string{"priority"},
	)

	// JobsCompleted tracks jobs that reached completed, by result path
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_completed_total",
			Help: "Total number of analysis jobs completed",
		},
		[]string{"path"},
	)

	// JobsFailed tracks job failures by error classification
	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_failed_total",
			Help: "Total number of analysis job failures",
		},
		[]string{"classification"},
	)

	// JobsRetried tracks re-queues decided by the retry strategy
	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_retried_total",
			Help: "Total number of analysis job retries",
		},
		[]string{"priority"},
	)

	// JobsDeadLettered tracks terminal failures
	JobsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead letter queue",
		},
		[]string{"classification"},
	)

	// QueueDepth tracks jobs per status
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analysis_queue_depth",
			Help: "Number of jobs per status",
		},
		[]string{"status"},
	)

	// BreakerState tracks the circuit breaker state per service
	// (0 closed, 1 half_open, 2 open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analysis_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
		[]string{"service"},
	)

	// InferenceLatency tracks inference call latency
	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_inference_latency_seconds",
			Help:    "Inference call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)

	// FallbacksServed tracks degraded results by trigger
	FallbacksServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_fallbacks_served_total",
			Help: "Total number of fallback analyses served",
		},
		[]string{"trigger"},
	)

	// UpgradesScheduled tracks re-analysis jobs created by the upgrade scan
	UpgradesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_upgrades_scheduled_total",
			Help: "Total number of upgrade re-analysis jobs scheduled",
		},
	)

	// SweepRequeues tracks jobs recovered by the self-healing sweep
	SweepRequeues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_sweep_requeues_total",
			Help: "Total number of jobs recovered by the auto-requeue sweep",
		},
		[]string{"kind"},
	)
)
