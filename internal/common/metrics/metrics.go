// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	CompletionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_completion_calls_total",
			Help: "Completion service calls by outcome",
		},
		[]string{"status"},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_completion_duration_seconds",
			Help:    "Completion service call latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"status"},
	)

	CompletionCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_completion_cache_total",
			Help: "Reply cache lookups by result",
		},
		[]string{"result"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"stage", "status"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_validation_failures_total",
			Help: "Model replies rejected by schema validation",
		},
		[]string{"schema"},
	)

	BackfillRequeries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_backfill_requeries_total",
			Help: "Side-effect backfill queries by outcome",
		},
		[]string{"status"},
	)

	QuestionSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_question_source_total",
			Help: "Where follow-up questions came from",
		},
		[]string{"source"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_runs_total",
			Help: "Review runs by outcome",
		},
		[]string{"status"},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_sink_failures_total",
			Help: "Optional sink writes that failed",
		},
		[]string{"sink"},
	)
)
