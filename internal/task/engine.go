package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fenwick-io/task-agent/internal/domain"
	"github.com/fenwick-io/task-agent/internal/store"
)

// Config holds the tunables of the task lifecycle engine. All values are
// supplied already validated by the configuration layer.
type Config struct {
	// MaxConcurrentTasks caps how many tasks may execute simultaneously.
	MaxConcurrentTasks int

	// Timeout bounds a single work-function invocation. Exceeding it fails
	// the task; there is no retry.
	Timeout time.Duration

	// Retention is how long a terminal task record is kept after
	// completion. Zero or less disables retention sweeping.
	Retention time.Duration

	// MaxTaskCount caps how many records the store retains. Beyond it the
	// sweeper trims the oldest-created terminal records.
	MaxTaskCount int

	// SweepInterval is how often the retention sweeper runs.
	// If zero, defaults to one hour.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 5,
		Timeout:            60 * time.Second,
		Retention:          24 * time.Hour,
		MaxTaskCount:       1000,
		SweepInterval:      time.Hour,
	}
}

// MetricsSnapshot is the aggregate view returned by Engine.Metrics.
// Completed and failed counts are cumulative for the process lifetime and
// survive eviction of the underlying records.
type MetricsSnapshot struct {
	TotalTasks    int     `json:"task_count"`
	Running       int     `json:"running_tasks"`
	Pending       int     `json:"pending_tasks"`
	Completed     int64   `json:"completed_tasks"`
	Failed        int64   `json:"failed_tasks"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Engine is the task lifecycle facade. It composes the task store, the
// admission gate, the executor and the retention sweeper, and exposes
// submit/get/list/cancel/metrics to the transport layer.
//
// An Engine is constructed once at startup, started with Start, and wound
// down with Stop. It tracks every execution goroutine it spawns so that
// shutdown can request cancellation and drain within a grace period.
type Engine struct {
	store    store.TaskStore
	gate     *AdmissionGate
	executor *Executor
	sweeper  *Sweeper
	work     WorkFunc
	logger   *slog.Logger
	metrics  *Metrics

	startedAt      time.Time
	completedCount atomic.Int64
	failedCount    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewEngine creates an Engine executing work for every submitted task.
// Prometheus collectors are registered on reg; pass a fresh registry when
// isolation is needed, or nil for the default registry.
func NewEngine(
	taskStore store.TaskStore,
	cfg Config,
	work WorkFunc,
	logger *slog.Logger,
	reg prometheus.Registerer,
) *Engine {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}

	metrics := MustNewMetrics(reg)
	gate := NewAdmissionGate(cfg.MaxConcurrentTasks)
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		store:     taskStore,
		gate:      gate,
		executor:  NewExecutor(taskStore, gate, cfg.Timeout, logger, metrics),
		sweeper:   NewSweeper(taskStore, cfg.Retention, cfg.MaxTaskCount, cfg.SweepInterval, logger, metrics),
		work:      work,
		logger:    logger,
		metrics:   metrics,
		startedAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		cancels:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the retention sweeper. It must be called once before the
// engine serves traffic.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sweeper.Run(e.ctx)
	}()
	e.logger.Info("task engine started",
		"max_concurrent_tasks", e.gate.Capacity())
}

// Stop requests cancellation of the sweeper and every in-flight task, then
// waits up to grace for them to drain. A final sweep runs after the drain
// so shutdown leaves no eligible garbage behind.
func (e *Engine) Stop(grace time.Duration) {
	e.logger.Info("task engine stopping")
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		e.logger.Warn("task engine drain exceeded grace period", "grace", grace)
	}

	e.sweeper.Sweep()
	e.logger.Info("task engine stopped")
}

// Submit creates a task record for payload and schedules its execution.
// It returns the created record immediately; it never waits on the
// admission gate. An eager sweep runs first so retention pressure is
// relieved before the store grows.
func (e *Engine) Submit(payload map[string]any) (*domain.Task, error) {
	e.sweeper.Sweep()

	task, err := domain.NewTask(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if err := e.store.Put(task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	e.metrics.SubmittedInc()
	e.logger.Info("task submitted", "task_id", task.ID, "task_type", task.Type)

	taskCtx, cancelTask := context.WithCancel(e.ctx)
	e.trackCancel(task.ID, cancelTask)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.untrackCancel(task.ID)
		defer cancelTask()

		switch e.executor.Execute(taskCtx, task.ID, e.work) {
		case domain.TaskStatusCompleted:
			e.completedCount.Add(1)
			e.metrics.CompletedInc()
		case domain.TaskStatusFailed:
			e.failedCount.Add(1)
			e.metrics.FailedInc()
		case domain.TaskStatusCancelled:
			e.metrics.CancelledInc()
		}
	}()

	return task.Clone(), nil
}

// Get returns the task with the given ID, or store.ErrTaskNotFound.
func (e *Engine) Get(id uuid.UUID) (*domain.Task, error) {
	return e.store.Get(id)
}

// List returns all task records, optionally filtered by status and type.
// Empty filter values match everything.
func (e *Engine) List(status, taskType string) []*domain.Task {
	tasks := e.store.List()

	filtered := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if status != "" && !strings.EqualFold(string(t.Status), status) {
			continue
		}
		if taskType != "" && t.Type != taskType {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

// Cancel marks the task cancelled and interrupts its execution context.
// Cancelling an already-terminal task is a no-op; an unknown ID returns
// store.ErrTaskNotFound. Work functions that ignore their context keep
// running, but the record stays cancelled and their eventual outcome is
// discarded.
func (e *Engine) Cancel(id uuid.UUID) error {
	err := e.store.Update(id, func(t *domain.Task) error {
		if t.IsTerminal() {
			return nil
		}
		return t.Cancel()
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	cancelTask, ok := e.cancels[id]
	e.mu.Unlock()
	if ok {
		cancelTask()
	}

	e.logger.Info("task cancelled", "task_id", id)
	return nil
}

// Metrics returns an aggregate snapshot of engine activity.
func (e *Engine) Metrics() MetricsSnapshot {
	running, pending := 0, 0
	for _, t := range e.store.List() {
		switch t.Status {
		case domain.TaskStatusRunning:
			running++
		case domain.TaskStatusPending:
			pending++
		}
	}

	return MetricsSnapshot{
		TotalTasks:    e.store.Len(),
		Running:       running,
		Pending:       pending,
		Completed:     e.completedCount.Load(),
		Failed:        e.failedCount.Load(),
		UptimeSeconds: time.Since(e.startedAt).Seconds(),
	}
}

func (e *Engine) trackCancel(id uuid.UUID, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[id] = cancel
}

func (e *Engine) untrackCancel(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, id)
}
