package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fenwick-io/task-agent/internal/domain"
	"github.com/fenwick-io/task-agent/internal/store"
)

// ErrSweep is the base error for a failed sweep iteration. Sweep failures
// are logged and the periodic schedule continues; they are never fatal.
var ErrSweep = errors.New("retention sweep failed")

// Sweeper periodically evicts old terminal task records from the store.
// Each sweep deletes terminal records whose completion is older than the
// retention window, then trims the oldest-created terminal records beyond
// the maximum retained count. Non-terminal records are never deleted, so a
// store holding more than the cap in live tasks stays over the cap until
// they finish.
type Sweeper struct {
	store     store.TaskStore
	retention time.Duration
	maxTasks  int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

// NewSweeper creates a Sweeper over taskStore. A retention of zero or less
// disables sweeping entirely. An interval of zero or less falls back to an
// hourly schedule.
func NewSweeper(
	taskStore store.TaskStore,
	retention time.Duration,
	maxTasks int,
	interval time.Duration,
	logger *slog.Logger,
	metrics *Metrics,
) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:     taskStore,
		retention: retention,
		maxTasks:  maxTasks,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes sweeps on the configured interval until ctx is done. A
// failed sweep is logged and retried at the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("retention sweeper started",
		"interval", s.interval,
		"retention", s.retention,
		"max_tasks", s.maxTasks)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one sweep iteration, recovering from any failure so the
// schedule is never terminated. Returns the number of records deleted.
func (s *Sweeper) Sweep() int {
	deleted, err := s.sweepOnce()
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return deleted
	}
	if deleted > 0 {
		s.logger.Info("retention sweep deleted tasks", "deleted", deleted)
		s.metrics.SweptAdd(deleted)
	}
	return deleted
}

// sweepOnce performs the expiry and trim steps. A panic anywhere inside is
// converted into an ErrSweep so a buggy predicate cannot kill the schedule.
func (s *Sweeper) sweepOnce() (deleted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v\n%s", ErrSweep, r, debug.Stack())
		}
	}()

	if s.retention <= 0 {
		// Retention disabled.
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-s.retention)
	deleted = s.store.DeleteIf(func(t *domain.Task) bool {
		return t.IsTerminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff)
	})

	deleted += s.trimExcess()
	return deleted, nil
}

// trimExcess deletes the oldest-created terminal records until the store is
// back under the configured cap. Only terminal records are candidates.
func (s *Sweeper) trimExcess() int {
	excess := s.store.Len() - s.maxTasks
	if excess <= 0 {
		return 0
	}

	terminal := make([]*domain.Task, 0)
	for _, t := range s.store.List() {
		if t.IsTerminal() {
			terminal = append(terminal, t)
		}
	}
	if len(terminal) == 0 {
		return 0
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].CreatedAt.Before(terminal[j].CreatedAt)
	})

	if excess > len(terminal) {
		excess = len(terminal)
	}

	doomed := make(map[uuid.UUID]struct{}, excess)
	for _, t := range terminal[:excess] {
		doomed[t.ID] = struct{}{}
	}

	// Terminal records never transition again, so the set chosen from the
	// snapshot is still valid when the deletion runs under the write lock.
	return s.store.DeleteIf(func(t *domain.Task) bool {
		_, ok := doomed[t.ID]
		return ok && t.IsTerminal()
	})
}
