// Package metrics provides internal prometheus instrumentation for the
// pipeline engine. This package is internal and should not be imported
// by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates engine metrics: run outcomes, node executions,
// step latency, retries, and checkpoint decisions.
type Collector struct {
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	nodesTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	stepRetries  prometheus.Counter

	checkpointsRaised   prometheus.Counter
	checkpointsResolved *prometheus.CounterVec
}

// NewCollector creates a collector registered against reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid global registry collisions.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by terminal status",
		},
		[]string{"pipeline", "status"},
	)

	c.runDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	c.nodesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_node_executions_total",
			Help:      "Total number of node executions by kind and terminal state",
		},
		[]string{"kind", "state"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Step execution duration in seconds, including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent_id"},
	)

	c.stepRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_step_retries_total",
			Help:      "Total number of step retry attempts",
		},
	)

	c.checkpointsRaised = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_checkpoints_raised_total",
			Help:      "Total number of checkpoints raised",
		},
	)

	c.checkpointsResolved = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_checkpoints_resolved_total",
			Help:      "Total number of checkpoint resume decisions by action",
		},
		[]string{"action"},
	)

	return c
}

// RecordRun records a run reaching a terminal status.
func (c *Collector) RecordRun(pipeline, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(pipeline, status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordNode records a node execution outcome.
func (c *Collector) RecordNode(kind, state string) {
	c.nodesTotal.WithLabelValues(kind, state).Inc()
}

// RecordStep records a step's total execution duration.
func (c *Collector) RecordStep(agentID string, duration time.Duration) {
	c.stepDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt.
func (c *Collector) RecordRetry() {
	c.stepRetries.Inc()
}

// RecordCheckpointRaised records a checkpoint suspension.
func (c *Collector) RecordCheckpointRaised() {
	c.checkpointsRaised.Inc()
}

// RecordCheckpointResolved records a resume decision.
func (c *Collector) RecordCheckpointResolved(action string) {
	c.checkpointsResolved.WithLabelValues(action).Inc()
}
