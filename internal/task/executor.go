package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/fenwick-io/task-agent/internal/domain"
	"github.com/fenwick-io/task-agent/internal/store"
)

// Common execution errors recorded into failed task records.
var (
	// ErrTaskExecution is the base error for any work-function failure.
	ErrTaskExecution = errors.New("task execution failed")

	// ErrTaskTimeout indicates the work function exceeded the configured
	// per-task timeout. It is a specialization of ErrTaskExecution.
	ErrTaskTimeout = fmt.Errorf("%w: timed out", ErrTaskExecution)
)

// WorkFunc is the pluggable unit of work executed per task. It receives the
// task's payload and returns a structured result. The function must honor
// ctx cancellation for cooperative interruption; a function that ignores ctx
// is still bounded by the executor's timeout for bookkeeping purposes.
type WorkFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Executor runs a single attempt of a task's work function under the
// admission gate and the configured timeout, and writes the outcome into the
// task store. Errors never escape Execute; every exit path leaves the record
// in a terminal state with CompletedAt stamped and the gate slot released.
type Executor struct {
	store   store.TaskStore
	gate    *AdmissionGate
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// NewExecutor creates an Executor writing outcomes into taskStore.
func NewExecutor(
	taskStore store.TaskStore,
	gate *AdmissionGate,
	timeout time.Duration,
	logger *slog.Logger,
	metrics *Metrics,
) *Executor {
	return &Executor{
		store:   taskStore,
		gate:    gate,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Execute runs work for the task with the given ID. The record transitions
// to running before the gate slot is requested, so "running" is visible to
// observers as "accepted for execution" rather than "occupying a slot".
//
// Exactly one Execute call happens per task. Execute returns the terminal
// status the record ended in.
func (e *Executor) Execute(ctx context.Context, id uuid.UUID, work WorkFunc) domain.TaskStatus {
	logger := e.logger.With("task_id", id)

	if err := e.store.Update(id, func(t *domain.Task) error { return t.Start() }); err != nil {
		// Cancelled before starting, or already evicted. Nothing to run.
		logger.Debug("task not started", "error", err)
		return e.currentStatus(id)
	}

	if err := e.gate.Acquire(ctx); err != nil {
		// Shut down or cancelled while waiting for a slot. Close out the
		// record so CompletedAt is stamped even on this path.
		logger.Debug("abandoned wait for execution slot", "error", err)
		e.finalizeCancelled(id)
		return e.currentStatus(id)
	}
	defer e.gate.Release()

	e.metrics.ExecutingInc()
	defer e.metrics.ExecutingDec()

	logger.Info("executing task")

	result, err := e.runBounded(ctx, id, work)

	switch {
	case err == nil:
		e.finalize(id, func(t *domain.Task) error { return t.Complete(result) })
	case errors.Is(err, context.Canceled):
		// Cancelled mid-run, either externally or by shutdown. The engine
		// usually marked the record already; this covers the shutdown path.
		e.finalizeCancelled(id)
	default:
		logger.Error("task execution failed", "error", err)
		e.finalize(id, func(t *domain.Task) error { return t.Fail(err) })
	}

	return e.currentStatus(id)
}

// runBounded invokes work with the payload under the per-task timeout.
// A panic inside the work function is converted into an execution error.
func (e *Executor) runBounded(ctx context.Context, id uuid.UUID, work WorkFunc) (map[string]any, error) {
	task, err := e.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTaskExecution, err)
	}

	workCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("work function panicked",
					"task_id", id,
					"panic", r,
					"stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%w: panic: %v", ErrTaskExecution, r)}
			}
		}()
		result, err := work(workCtx, task.Payload)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		switch {
		case out.err == nil:
			return out.result, nil
		case errors.Is(out.err, context.DeadlineExceeded):
			// The work function observed the deadline itself.
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, e.timeout)
		case errors.Is(out.err, context.Canceled):
			return nil, context.Canceled
		case errors.Is(out.err, ErrTaskExecution):
			return nil, out.err
		default:
			return nil, fmt.Errorf("%w: %v", ErrTaskExecution, out.err)
		}
	case <-workCtx.Done():
		if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, e.timeout)
		}
		// External cancellation. The record is marked cancelled by the
		// engine; report it so no terminal transition is attempted here.
		return nil, workCtx.Err()
	}
}

// finalize applies the terminal transition. A record that is already
// terminal (cancelled out from under the executor) is left untouched.
func (e *Executor) finalize(id uuid.UUID, transition func(t *domain.Task) error) {
	err := e.store.Update(id, func(t *domain.Task) error {
		if t.IsTerminal() {
			return nil
		}
		return transition(t)
	})
	if err != nil && !errors.Is(err, store.ErrTaskNotFound) {
		e.logger.Error("failed to finalize task", "task_id", id, "error", err)
	}
}

// finalizeCancelled closes out a record whose execution was abandoned
// before the work function ran.
func (e *Executor) finalizeCancelled(id uuid.UUID) {
	e.finalize(id, func(t *domain.Task) error { return t.Cancel() })
}

func (e *Executor) currentStatus(id uuid.UUID) domain.TaskStatus {
	task, err := e.store.Get(id)
	if err != nil {
		return domain.TaskStatusCancelled
	}
	return task.Status
}
