package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fenwick-io/task-agent/internal/domain"
)

// MemoryTaskStore is an in-memory TaskStore backed by a map guarded by a
// RWMutex. Reads by ID and snapshot listing take the read lock; Put, Update
// and Delete take the write lock, so store-wide iteration never observes a
// record mid-mutation.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// Statically verify that MemoryTaskStore implements TaskStore.
var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Put inserts a new task record after validating it.
func (s *MemoryTaskStore) Put(task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidEntity)
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
	return nil
}

// Get returns a copy of the task with the given ID, or ErrTaskNotFound.
func (s *MemoryTaskStore) Get(id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Update applies fn to the task with the given ID under the write lock.
func (s *MemoryTaskStore) Update(id uuid.UUID, fn func(task *domain.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	return fn(task)
}

// Delete removes the task with the given ID.
func (s *MemoryTaskStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// DeleteIf removes every task matching pred under the write lock.
func (s *MemoryTaskStore) DeleteIf(pred func(task *domain.Task) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, task := range s.tasks {
		if pred(task) {
			delete(s.tasks, id)
			deleted++
		}
	}
	return deleted
}

// List returns a snapshot of copies of all task records. Order is undefined.
func (s *MemoryTaskStore) List() []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	return tasks
}

// Len returns the number of records currently held.
func (s *MemoryTaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tasks)
}
