package task

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// AdmissionGate is the bounded-concurrency primitive limiting how many tasks
// may execute their work function simultaneously. Capacity is fixed for the
// lifetime of the gate.
type AdmissionGate struct {
	sem      *semaphore.Weighted
	capacity int
}

// NewAdmissionGate creates a gate with the given capacity.
// A capacity below one is coerced to one.
func NewAdmissionGate(capacity int) *AdmissionGate {
	if capacity < 1 {
		capacity = 1
	}
	return &AdmissionGate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done. It returns ctx's error
// when the wait is abandoned, in which case no slot is held.
func (g *AdmissionGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a previously acquired slot. Callers pair it with Acquire
// via defer so the slot is returned on every exit path.
func (g *AdmissionGate) Release() {
	g.sem.Release(1)
}

// Capacity returns the fixed number of slots.
func (g *AdmissionGate) Capacity() int {
	return g.capacity
}
