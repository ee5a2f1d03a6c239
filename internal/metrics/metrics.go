// Package metrics exposes Prometheus instruments for the cluster.
//
// The collector tracks the RED signals of task execution (submissions,
// outcomes, duration) plus per-worker saturation (queue length) and
// resource health (cycles skipped because the resource was disconnected).
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "browser_cluster"

// Outcome labels for completed tasks.
const (
	OutcomeFinished  = "finished"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// Collector holds the cluster's Prometheus instruments.
//
// A nil *Collector is valid and records nothing, so callers never need to
// check whether metrics are enabled.
type Collector struct {
	tasksSubmitted prometheus.Counter
	tasksCompleted *prometheus.CounterVec
	taskDuration   prometheus.Histogram
	queueLength    *prometheus.GaugeVec
	skippedCycles  *prometheus.CounterVec
}

// NewCollector creates a collector and registers it on reg.
//
// If reg is nil the instruments are created but not registered; they still
// count, which keeps tests independent of any global registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the cluster",
		}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of settled tasks by outcome",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time spent running task work",
			Buckets:   prometheus.DefBuckets,
		}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_length",
			Help:      "Current number of queued tasks per worker",
		}, []string{"worker"}),
		skippedCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_skipped_cycles_total",
			Help:      "Cycles skipped because the worker's resource was disconnected",
		}, []string{"worker"}),
	}

	if reg == nil {
		return c, nil
	}

	for _, col := range []prometheus.Collector{
		c.tasksSubmitted,
		c.tasksCompleted,
		c.taskDuration,
		c.queueLength,
		c.skippedCycles,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// RecordSubmitted counts a task accepted by the cluster.
func (c *Collector) RecordSubmitted() {
	if c == nil {
		return
	}
	c.tasksSubmitted.Inc()
}

// RecordCompleted counts a settled task and, for tasks that ran, observes
// how long the work took.
func (c *Collector) RecordCompleted(outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.tasksCompleted.WithLabelValues(outcome).Inc()
	if outcome != OutcomeAbandoned {
		c.taskDuration.Observe(seconds)
	}
}

// SetQueueLength publishes the current queue length of a worker.
func (c *Collector) SetQueueLength(workerID, length int) {
	if c == nil {
		return
	}
	c.queueLength.WithLabelValues(strconv.Itoa(workerID)).Set(float64(length))
}

// RecordSkippedCycle counts a cycle skipped on a disconnected resource.
func (c *Collector) RecordSkippedCycle(workerID int) {
	if c == nil {
		return
	}
	c.skippedCycles.WithLabelValues(strconv.Itoa(workerID)).Inc()
}
