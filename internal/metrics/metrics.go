// Package metrics exposes the scheduler's Prometheus collectors. Queue depth
// is a first-class gauge so starvation of a level is observable from outside.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted into a priority queue.",
		},
		[]string{"priority"},
	)

	TasksDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Name:      "tasks_dispatched_total",
			Help:      "Task-to-worker assignments, including retries.",
		},
		[]string{"priority"},
	)

	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Name:      "tasks_completed_total",
			Help:      "Tasks finished successfully.",
		},
	)

	TasksFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Name:      "tasks_failed_total",
			Help:      "Tasks failed terminally after exhausting attempts.",
		},
	)

	TasksRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Name:      "tasks_retried_total",
			Help:      "Failed attempts that were scheduled for retry.",
		},
	)

	TasksCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskpilot",
			Name:      "tasks_cancelled_total",
			Help:      "Tasks cancelled before reaching a worker.",
		},
	)

	RunningTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskpilot",
			Name:      "running_tasks",
			Help:      "Tasks currently assigned to a worker.",
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "taskpilot",
			Name:      "queue_depth",
			Help:      "Queued tasks per priority level.",
		},
		[]string{"priority"},
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskpilot",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of completed tasks.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register installs all collectors on the default registry. Call once from
// the daemon entrypoint; tests exercising the scheduler skip it.
func Register() {
	prometheus.MustRegister(
		TasksSubmitted,
		TasksDispatched,
		TasksCompleted,
		TasksFailed,
		TasksRetried,
		TasksCancelled,
		RunningTasks,
		QueueDepth,
		TaskDuration,
	)
}
