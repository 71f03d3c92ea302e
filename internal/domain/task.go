package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// DefaultTaskType is assumed when a payload carries no "type" discriminator.
const DefaultTaskType = "inference"

// Common validation and transition errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrNilTaskPayload     = errors.New("task payload cannot be nil")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrInvalidTransition  = errors.New("invalid task status transition")
	ErrTaskAlreadyDone    = fmt.Errorf("%w: task is already in a terminal state", ErrInvalidTransition)
	ErrTaskNotYetRunning  = fmt.Errorf("%w: task has not started running", ErrInvalidTransition)
	ErrTaskAlreadyStarted = fmt.Errorf("%w: task has already started", ErrInvalidTransition)
)

// Task represents one unit of submitted work tracked through a terminal
// outcome. It holds the caller-supplied payload, the lifecycle status,
// the outcome fields and the transition timestamps.
//
// Status only moves forward: pending → running → {completed|failed}, with
// cancellation allowed from any non-terminal state. The transition methods
// below are the only sanctioned way to mutate status so that readers never
// observe a record moving out of a terminal state.
type Task struct {
	ID          uuid.UUID      `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Status      TaskStatus     `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Progress    float64        `json:"progress"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// NewTask creates a new Task for the given payload. It generates a new UUID
// for the task ID, derives the task type from the payload's "type" field
// (falling back to DefaultTaskType), sets the status to pending, and stamps
// the creation time. Returns an error if validation fails.
func NewTask(payload map[string]any) (*Task, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	taskType := DefaultTaskType
	if v, ok := payload["type"].(string); ok && v != "" {
		taskType = v
	}

	task := &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Payload:   payload,
		Status:    TaskStatusPending,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Payload == nil {
		return ErrNilTaskPayload
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// IsTerminal reports whether the task has reached a terminal state
// (completed, failed or cancelled). Terminal tasks never transition again.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Start transitions the task from pending to running and stamps StartedAt.
// Running here means "accepted for execution": the transition happens before
// an execution slot is actually held, so a backlog of admitted tasks is
// visible to observers as running rather than pending.
func (t *Task) Start() error {
	if t.IsTerminal() {
		return ErrTaskAlreadyDone
	}
	if t.Status != TaskStatusPending {
		return ErrTaskAlreadyStarted
	}

	now := time.Now().UTC()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	return nil
}

// Complete transitions the task from running to completed, records the
// result, sets progress to 1 and stamps CompletedAt.
func (t *Task) Complete(result map[string]any) error {
	if t.IsTerminal() {
		return ErrTaskAlreadyDone
	}
	if t.Status != TaskStatusRunning {
		return ErrTaskNotYetRunning
	}

	now := time.Now().UTC()
	t.Status = TaskStatusCompleted
	t.Result = result
	t.Progress = 1
	t.CompletedAt = &now
	return nil
}

// Fail transitions the task from running to failed, records the error text
// and an error-shaped result, and stamps CompletedAt.
func (t *Task) Fail(execErr error) error {
	if t.IsTerminal() {
		return ErrTaskAlreadyDone
	}
	if t.Status != TaskStatusRunning {
		return ErrTaskNotYetRunning
	}

	now := time.Now().UTC()
	t.Status = TaskStatusFailed
	t.Error = execErr.Error()
	t.Result = map[string]any{"error": execErr.Error()}
	t.CompletedAt = &now
	return nil
}

// Cancel force-transitions a non-terminal task to cancelled and stamps
// CompletedAt. Cancelling an already-terminal task is rejected so that no
// record is ever resurrected or relabelled after completion.
func (t *Task) Cancel() error {
	if t.IsTerminal() {
		return ErrTaskAlreadyDone
	}

	now := time.Now().UTC()
	t.Status = TaskStatusCancelled
	t.CompletedAt = &now
	return nil
}

// Clone returns a deep copy of the task. The store hands out clones to
// readers so that in-place mutation of the canonical record never races
// with a caller still holding a previously returned task.
func (t *Task) Clone() *Task {
	clone := *t

	if t.Payload != nil {
		clone.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			clone.Payload[k] = v
		}
	}
	if t.Result != nil {
		clone.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			clone.Result[k] = v
		}
	}
	if t.StartedAt != nil {
		startedAt := *t.StartedAt
		clone.StartedAt = &startedAt
	}
	if t.CompletedAt != nil {
		completedAt := *t.CompletedAt
		clone.CompletedAt = &completedAt
	}

	return &clone
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}
