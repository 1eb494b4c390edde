package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task lifecycle metrics
	TasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fable_tasks_created_total",
			Help: "Total number of translation tasks created",
		},
	)

	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fable_tasks_completed_total",
			Help: "Total number of translation tasks completed",
		},
	)

	TasksFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fable_tasks_failed_total",
			Help: "Total number of translation tasks that failed",
		},
	)

	TasksRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fable_tasks_retried_total",
			Help: "Total number of failed tasks requeued for retry",
		},
	)

	TasksCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fable_tasks_cancelled_total",
			Help: "Total number of tasks cancelled",
		},
	)

	TasksReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fable_tasks_reclaimed_total",
			Help: "Total number of orphaned tasks reclaimed from dead workers",
		},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fable_tasks_total",
			Help: "Current number of tasks by status",
		},
		[]string{"status"},
	)

	// Worker metrics
	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fable_workers_active",
			Help: "Number of workers with a live heartbeat",
		},
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "fable_task_duration_seconds",
			Help: "Time from claim to completion of a task in seconds",
			// Translation runs span seconds to many minutes.
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fable_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fable_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Janitor metrics
	GCCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fable_gc_cycles_total",
			Help: "Total number of garbage collection cycles",
		},
	)

	GCCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fable_gc_cycle_duration_seconds",
			Help:    "Garbage collection cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksCreated)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TasksRetried)
	prometheus.MustRegister(TasksCancelled)
	prometheus.MustRegister(TasksReclaimed)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(GCCycles)
	prometheus.MustRegister(GCCycleDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
