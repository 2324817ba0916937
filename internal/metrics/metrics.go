// Package metrics exposes the engine's Prometheus instrumentation:
// task throughput and latency, arena occupancy, message routing
// volume, and collective-operation counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the engine registers.
type Metrics struct {
	TaskDuration *prometheus.HistogramVec
	TasksTotal   *prometheus.CounterVec

	WorkflowsActive  prometheus.Gauge
	WorkflowDuration *prometheus.HistogramVec
	WorkflowsTotal   *prometheus.CounterVec

	ArenaBytesUsed prometheus.Gauge
	ArenaObjects   prometheus.Gauge

	MessagesRouted    *prometheus.CounterVec
	MessageQueueDepth *prometheus.GaugeVec

	CollectiveOps *prometheus.CounterVec
}

// New creates and registers every collector under namespace. An empty
// namespace defaults to "pipeline".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pipeline"
	}

	return &Metrics{
		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of module Compute calls",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"module_kind", "status"},
		),
		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total tasks completed, by terminal status",
			},
			[]string{"status"},
		),

		WorkflowsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workflows_active",
				Help:      "Number of workflows currently running",
			},
		),
		WorkflowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Wall-clock duration of execute_workflow calls",
				Buckets:   []float64{.01, .1, .5, 1, 5, 30, 60, 300},
			},
			[]string{"status"},
		),
		WorkflowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_total",
				Help:      "Total workflows settled, by terminal status",
			},
			[]string{"status"},
		),

		ArenaBytesUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "arena_bytes_used",
				Help:      "Bytes currently allocated in the shared-memory arena",
			},
		),
		ArenaObjects: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "arena_objects",
				Help:      "Objects currently resident in the arena",
			},
		),

		MessagesRouted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_routed_total",
				Help:      "Messages routed, by kind",
			},
			[]string{"kind"},
		),
		MessageQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "message_queue_depth",
				Help:      "Pending messages queued per module",
			},
			[]string{"module"},
		),

		CollectiveOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collective_ops_total",
				Help:      "Distributed-context collectives executed, by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordTask records one task's terminal outcome.
func (m *Metrics) RecordTask(moduleKind, status string, duration time.Duration) {
	m.TaskDuration.WithLabelValues(moduleKind, status).Observe(duration.Seconds())
	m.TasksTotal.WithLabelValues(status).Inc()
}

// RecordWorkflow records one workflow's terminal outcome.
func (m *Metrics) RecordWorkflow(status string, duration time.Duration) {
	m.WorkflowDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.WorkflowsTotal.WithLabelValues(status).Inc()
}

// RecordMessage records one successfully routed message.
func (m *Metrics) RecordMessage(kind string) {
	m.MessagesRouted.WithLabelValues(kind).Inc()
}

// RecordCollective records one distctx collective call.
func (m *Metrics) RecordCollective(kind string) {
	m.CollectiveOps.WithLabelValues(kind).Inc()
}

// RecordArenaStats sets the arena occupancy gauges from a point-in-time
// sample; callers poll their arena.Stats() and pass it in here on an
// interval rather than this package depending on the arena type.
func (m *Metrics) RecordArenaStats(usedBytes uint64, objectCount int) {
	m.ArenaBytesUsed.Set(float64(usedBytes))
	m.ArenaObjects.Set(float64(objectCount))
}
