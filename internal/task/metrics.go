package task

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors reporting task lifecycle activity.
// A nil *Metrics is valid and turns every method into a no-op, which keeps
// tests free of registry bookkeeping.
type Metrics struct {
	tasksSubmitted prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksCancelled prometheus.Counter
	tasksSwept     prometheus.Counter
	tasksExecuting prometheus.Gauge
}

// MustNewMetrics constructs a Metrics instance registered with reg. Any
// registration error panics, mirroring promauto semantics so configuration
// bugs surface early. Callers needing isolation (tests, multiple engines)
// supply a fresh registry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "task_agent",
			Subsystem: "engine",
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks accepted by submit.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "task_agent",
			Subsystem: "engine",
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks that finished successfully.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "task_agent",
			Subsystem: "engine",
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that failed or timed out.",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "task_agent",
			Subsystem: "engine",
			Name:      "tasks_cancelled_total",
			Help:      "Total number of tasks cancelled before completion.",
		}),
		tasksSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "task_agent",
			Subsystem: "engine",
			Name:      "tasks_swept_total",
			Help:      "Total number of task records evicted by retention sweeps.",
		}),
		tasksExecuting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "task_agent",
			Subsystem: "engine",
			Name:      "tasks_executing",
			Help:      "Number of tasks currently holding an execution slot.",
		}),
	}

	reg.MustRegister(
		m.tasksSubmitted,
		m.tasksCompleted,
		m.tasksFailed,
		m.tasksCancelled,
		m.tasksSwept,
		m.tasksExecuting,
	)

	return m
}

// SubmittedInc records an accepted submission.
func (m *Metrics) SubmittedInc() {
	if m != nil {
		m.tasksSubmitted.Inc()
	}
}

// CompletedInc records a successful completion.
func (m *Metrics) CompletedInc() {
	if m != nil {
		m.tasksCompleted.Inc()
	}
}

// FailedInc records a failure or timeout.
func (m *Metrics) FailedInc() {
	if m != nil {
		m.tasksFailed.Inc()
	}
}

// CancelledInc records a cancellation.
func (m *Metrics) CancelledInc() {
	if m != nil {
		m.tasksCancelled.Inc()
	}
}

// SweptAdd records n evicted task records.
func (m *Metrics) SweptAdd(n int) {
	if m != nil {
		m.tasksSwept.Add(float64(n))
	}
}

// ExecutingInc marks a task entering the execution slot window.
func (m *Metrics) ExecutingInc() {
	if m != nil {
		m.tasksExecuting.Inc()
	}
}

// ExecutingDec marks a task leaving the execution slot window.
func (m *Metrics) ExecutingDec() {
	if m != nil {
		m.tasksExecuting.Dec()
	}
}
