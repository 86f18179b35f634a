// ============================================================================
// Taskengine Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose scheduler metrics for Prometheus monitoring.
//
// Monitoring Philosophy:
//   Based on RED (Rate, Errors, Duration) and USE (Utilization, Saturation,
//   Errors), scoped to the scheduler's own concerns rather than host
//   business logic.
//
// Metric Categories:
//
//   1. Task Counters - Cumulative, monotonically increasing:
//      - tasks_submitted_total: Total tasks submitted
//      - tasks_completed_total: Total tasks that reached Done without error
//      - tasks_failed_total: Total tasks that reached Done with a captured
//        or propagated exception
//      - work_units_executed_total: Total claimed-and-run work units
//        (a task with units=200 contributes 200 even if some of its units
//        fail; a task that inherits a parent's failure contributes none)
//
//   2. Performance Metrics (Histogram):
//      - task_wait_seconds: submission-to-completion latency distribution
//
//   3. Status Metrics (Gauge) - instantaneous:
//      - pool_size: current worker count
//      - pool_idle_workers: workers currently parked
//      - queue_depth: approximate ready-queue length
//
// Unlike a process-global Prometheus registry, each Collector owns its own
// registry. The teacher this is adapted from registers directly against
// the default registry, which panics if a second Collector is constructed
// in the same process (its own tests route around this by replacing
// prometheus.DefaultRegisterer before each case). Scoping the registry to
// the Collector instance avoids that footgun entirely and lets a host
// program run more than one pool's metrics side by side.
//
// ============================================================================

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one pool.
type Collector struct {
	registry *prometheus.Registry

	tasksSubmitted prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	workUnitsDone  prometheus.Counter

	taskWait prometheus.Histogram

	poolSize    prometheus.Gauge
	idleWorkers prometheus.Gauge
	queueDepth  prometheus.Gauge
}

// NewCollector creates a new metrics collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskengine_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskengine_tasks_completed_total",
			Help: "Total number of tasks that completed without error",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskengine_tasks_failed_total",
			Help: "Total number of tasks that completed with a captured or propagated error",
		}),
		workUnitsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskengine_work_units_executed_total",
			Help: "Total number of work units claimed and run",
		}),
		taskWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskengine_task_wait_seconds",
			Help:    "Submission-to-completion latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskengine_pool_size",
			Help: "Current worker count",
		}),
		idleWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskengine_pool_idle_workers",
			Help: "Workers currently parked waiting for work",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskengine_queue_depth",
			Help: "Approximate number of ready-queue entries",
		}),
	}

	c.registry.MustRegister(
		c.tasksSubmitted,
		c.tasksCompleted,
		c.tasksFailed,
		c.workUnitsDone,
		c.taskWait,
		c.poolSize,
		c.idleWorkers,
		c.queueDepth,
	)

	return c
}

// RecordSubmit records a task submission.
func (c *Collector) RecordSubmit() {
	c.tasksSubmitted.Inc()
}

// RecordCompletion records a task's terminal outcome and its
// submission-to-completion latency.
func (c *Collector) RecordCompletion(err error, waitSeconds float64) {
	if err != nil {
		c.tasksFailed.Inc()
	} else {
		c.tasksCompleted.Inc()
	}
	c.taskWait.Observe(waitSeconds)
}

// RecordWorkUnit records one claimed-and-run work unit.
func (c *Collector) RecordWorkUnit() {
	c.workUnitsDone.Inc()
}

// SetPoolSize sets the current worker count gauge.
func (c *Collector) SetPoolSize(n int) {
	c.poolSize.Set(float64(n))
}

// SetIdleWorkers sets the parked-worker gauge.
func (c *Collector) SetIdleWorkers(n int) {
	c.idleWorkers.Set(float64(n))
}

// SetQueueDepth sets the ready-queue length gauge.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// Handler returns the HTTP handler serving this collector's metrics in
// Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer starts an HTTP server exposing this collector's /metrics
// endpoint. It blocks until the server stops.
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(addr, mux)
}
