/*
Package metrics provides Prometheus metrics collection and exposition.

The metrics package defines and registers all task-system metrics using the
Prometheus client library: task lifecycle counters, queue-depth gauges, and
latency histograms. Metrics are exposed via HTTP endpoint for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ────────────────────┐
	│                                                          │
	│  ┌──────────────────────────────────────────┐           │
	│  │          Prometheus Registry              │           │
	│  │  - Global DefaultRegistry                 │           │
	│  │  - MustRegister at package init           │           │
	│  └──────────────────┬───────────────────────┘           │
	│                     │                                    │
	│  ┌──────────────────▼───────────────────────┐           │
	│  │           Metric Categories                │           │
	│  │  Lifecycle: created/completed/failed/      │           │
	│  │             retried/cancelled/reclaimed    │           │
	│  │  Queue:     tasks by status, live workers  │           │
	│  │  Latency:   task duration, API duration,   │           │
	│  │             GC cycle duration               │           │
	│  └──────────────────┬───────────────────────┘           │
	│                     │                                    │
	│  ┌──────────────────▼───────────────────────┐           │
	│  │          HTTP Metrics Endpoint             │           │
	│  │  - Path: /metrics                          │           │
	│  │  - Format: Prometheus text exposition      │           │
	│  │  - Handler: promhttp.Handler()             │           │
	│  └──────────────────────────────────────────┘           │
	└──────────────────────────────────────────────────────────┘

# Metrics Catalog

Lifecycle counters:

fable_tasks_created_total:
  - Incremented once per accepted task submission

fable_tasks_completed_total / fable_tasks_failed_total:
  - Terminal outcomes recorded by workers

fable_tasks_retried_total:
  - Failed tasks requeued through the retry endpoint

fable_tasks_cancelled_total:
  - Tasks cancelled while pending or processing

fable_tasks_reclaimed_total:
  - Orphaned deliveries moved off dead workers

Queue gauges:

fable_tasks_total{status}:
  - Sampled by the Collector from repository statistics
  - Labels: status (pending, processing, completed, failed, cancelled, retry)

fable_workers_active:
  - Workers holding a live heartbeat sentinel

Latency histograms:

fable_task_duration_seconds:
  - Claim-to-completion time; wide exponential buckets because a
    translation run spans seconds to many minutes

fable_api_request_duration_seconds{route}:
  - Recorded by the API middleware per route pattern

fable_gc_cycle_duration_seconds and fable_gc_cycles_total:
  - Janitor cycle timing and count

# Usage

	// Counters on the hot path
	metrics.TasksCreated.Inc()

	// Timing an operation
	timer := metrics.NewTimer()
	runCycle()
	timer.ObserveDuration(metrics.GCCycleDuration)

	// Sampling gauges in the background
	collector := metrics.NewCollector(repo, registry)
	collector.Start()
	defer collector.Stop()

	// Exposing the endpoint
	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on duplicates
  - Available before main(), no caller setup

Label Discipline:
  - Status and route labels only; task and worker IDs stay in logs

Collector Pattern:
  - Gauges sampled on a 15s ticker from narrow source interfaces
  - Errors during a sample leave the previous value in place

# See Also

  - pkg/dispatch and pkg/worker for the code paths that increment counters
  - pkg/api for the /metrics mount and request instrumentation
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
