package store

import (
	"github.com/google/uuid"

	"github.com/fenwick-io/task-agent/internal/domain"
)

// TaskStore defines the interface for keeping task records.
//
// The store exclusively owns all task records: the executor mutates records
// in place via Update, and the retention sweeper removes them via Delete.
// Callers must never keep a returned record around for later decisions;
// they re-read through Get instead.
type TaskStore interface {
	// Put inserts a new task record.
	Put(task *domain.Task) error

	// Get returns a copy of the task with the given ID, or ErrTaskNotFound.
	Get(id uuid.UUID) (*domain.Task, error)

	// Update applies fn to the task with the given ID while holding the
	// store's write lock, so no reader observes the record mid-mutation.
	// Returns ErrTaskNotFound if the task does not exist, or the error
	// returned by fn, in which case the record is left untouched only if
	// fn did not mutate it before failing.
	Update(id uuid.UUID, fn func(task *domain.Task) error) error

	// Delete removes the task with the given ID. Deleting an unknown ID
	// returns ErrTaskNotFound.
	Delete(id uuid.UUID) error

	// DeleteIf removes every task for which pred returns true and reports
	// how many were removed. The whole scan runs under the write lock, so
	// deletion decisions are never interleaved with concurrent mutation.
	DeleteIf(pred func(task *domain.Task) bool) int

	// List returns a snapshot of copies of all task records. Order is
	// undefined.
	List() []*domain.Task

	// Len returns the number of records currently held.
	Len() int
}
