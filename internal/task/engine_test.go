package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-io/task-agent/internal/domain"
	"github.com/fenwick-io/task-agent/internal/store"
)

func testEngineConfig() Config {
	return Config{
		MaxConcurrentTasks: 5,
		Timeout:            time.Second,
		Retention:          24 * time.Hour,
		MaxTaskCount:       1000,
		SweepInterval:      time.Hour,
	}
}

func newTestEngine(t *testing.T, cfg Config, work WorkFunc) *Engine {
	t.Helper()
	engine := NewEngine(store.NewMemoryTaskStore(), cfg, work, setupTestLogger(), prometheus.NewRegistry())
	t.Cleanup(func() { engine.Stop(time.Second) })
	return engine
}

// echoWork mirrors the default inference behavior: derive an output from
// the submitted input.
func echoWork(ctx context.Context, payload map[string]any) (map[string]any, error) {
	input, _ := payload["input"].(string)
	return map[string]any{"output": "Processed input: " + input}, nil
}

func waitForStatus(t *testing.T, engine *Engine, id uuid.UUID, want domain.TaskStatus) *domain.Task {
	t.Helper()
	require.Eventually(t, func() bool {
		task, err := engine.Get(id)
		return err == nil && task.Status == want
	}, 2*time.Second, 5*time.Millisecond, "task never reached status %s", want)

	task, err := engine.Get(id)
	require.NoError(t, err)
	return task
}

func TestEngineSubmitAndComplete(t *testing.T) {
	engine := newTestEngine(t, testEngineConfig(), echoWork)

	created, err := engine.Submit(map[string]any{"input": "hello"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	done := waitForStatus(t, engine, created.ID, domain.TaskStatusCompleted)
	assert.Equal(t, "Processed input: hello", done.Result["output"])
	assert.Equal(t, 1.0, done.Progress)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
}

func TestEngineSubmitNeverBlocksOnGate(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxConcurrentTasks = 1
	block := make(chan struct{})
	engine := newTestEngine(t, cfg, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		select {
		case <-block:
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	defer close(block)

	// With the single slot occupied, further submits must still return
	// promptly.
	for i := 0; i < 5; i++ {
		start := time.Now()
		_, err := engine.Submit(map[string]any{})
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 200*time.Millisecond)
	}
}

func TestEngineConcurrencyCap(t *testing.T) {
	const capacity = 2
	cfg := testEngineConfig()
	cfg.MaxConcurrentTasks = capacity

	var inFlight atomic.Int32
	var peak atomic.Int32
	engine := newTestEngine(t, cfg, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			current := peak.Load()
			if n <= current || peak.CompareAndSwap(current, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return map[string]any{}, nil
	})

	ids := make([]uuid.UUID, 0, 8)
	for i := 0; i < 8; i++ {
		created, err := engine.Submit(map[string]any{})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	for _, id := range ids {
		waitForStatus(t, engine, id, domain.TaskStatusCompleted)
	}

	assert.LessOrEqual(t, peak.Load(), int32(capacity),
		"work functions exceeded the concurrency cap")
}

func TestEngineTimeoutReleasesSlot(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxConcurrentTasks = 1
	cfg.Timeout = 40 * time.Millisecond

	engine := newTestEngine(t, cfg, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		if payload["slow"] == true {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]any{}, nil
	})

	// One more slow task than there are slots: each must time out, fail,
	// and release its slot so the next is admitted.
	slow := make([]uuid.UUID, 0, 2)
	for i := 0; i < 2; i++ {
		created, err := engine.Submit(map[string]any{"slow": true})
		require.NoError(t, err)
		slow = append(slow, created.ID)
	}
	quick, err := engine.Submit(map[string]any{})
	require.NoError(t, err)

	for _, id := range slow {
		failed := waitForStatus(t, engine, id, domain.TaskStatusFailed)
		assert.Contains(t, failed.Error, "timed out")
	}
	waitForStatus(t, engine, quick.ID, domain.TaskStatusCompleted)
}

func TestEngineMetricsCounts(t *testing.T) {
	engine := newTestEngine(t, testEngineConfig(), func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		if payload["fail"] == true {
			return nil, errors.New("induced failure")
		}
		return map[string]any{}, nil
	})

	ids := make([]uuid.UUID, 0, 4)
	for i := 0; i < 3; i++ {
		created, err := engine.Submit(map[string]any{})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	failing, err := engine.Submit(map[string]any{"fail": true})
	require.NoError(t, err)

	for _, id := range ids {
		waitForStatus(t, engine, id, domain.TaskStatusCompleted)
	}
	waitForStatus(t, engine, failing.ID, domain.TaskStatusFailed)

	require.Eventually(t, func() bool {
		m := engine.Metrics()
		return m.Completed == 3 && m.Failed == 1
	}, 2*time.Second, 5*time.Millisecond)

	m := engine.Metrics()
	assert.Equal(t, 4, m.TotalTasks)
	assert.Zero(t, m.Running)
	assert.Zero(t, m.Pending)
	assert.Greater(t, m.UptimeSeconds, 0.0)
}

func TestEngineCancelUnknownTask(t *testing.T) {
	engine := newTestEngine(t, testEngineConfig(), echoWork)

	err := engine.Cancel(uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestEngineCancelBackloggedTask(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxConcurrentTasks = 1

	block := make(chan struct{})
	ran := atomic.Bool{}
	engine := newTestEngine(t, cfg, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		if payload["blocker"] == true {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return map[string]any{}, nil
		}
		ran.Store(true)
		return map[string]any{}, nil
	})
	defer close(block)

	_, err := engine.Submit(map[string]any{"blocker": true})
	require.NoError(t, err)

	// The second task is accepted for execution but cannot get the slot.
	victim, err := engine.Submit(map[string]any{})
	require.NoError(t, err)
	waitForStatus(t, engine, victim.ID, domain.TaskStatusRunning)

	require.NoError(t, engine.Cancel(victim.ID))

	cancelled := waitForStatus(t, engine, victim.ID, domain.TaskStatusCancelled)
	assert.NotNil(t, cancelled.CompletedAt)
	assert.False(t, ran.Load(), "cancelled task's work function must not run")

	// Cancelling a terminal task again is a no-op, never a resurrection.
	require.NoError(t, engine.Cancel(victim.ID))
	still, err := engine.Get(victim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, still.Status)
}

func TestEngineCancelInterruptsRunningWork(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Timeout = 10 * time.Second

	started := make(chan struct{}, 1)
	engine := newTestEngine(t, cfg, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	created, err := engine.Submit(map[string]any{})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("work function never started")
	}

	require.NoError(t, engine.Cancel(created.ID))
	cancelled := waitForStatus(t, engine, created.ID, domain.TaskStatusCancelled)
	assert.NotNil(t, cancelled.CompletedAt)
}

func TestEngineListFilters(t *testing.T) {
	engine := newTestEngine(t, testEngineConfig(), echoWork)

	a, err := engine.Submit(map[string]any{"input": "a"})
	require.NoError(t, err)
	b, err := engine.Submit(map[string]any{"input": "b", "type": "embedding"})
	require.NoError(t, err)

	waitForStatus(t, engine, a.ID, domain.TaskStatusCompleted)
	waitForStatus(t, engine, b.ID, domain.TaskStatusCompleted)

	assert.Len(t, engine.List("", ""), 2)
	assert.Len(t, engine.List("completed", ""), 2)
	assert.Len(t, engine.List("COMPLETED", ""), 2, "status filter is case-insensitive")
	assert.Len(t, engine.List("failed", ""), 0)
	assert.Len(t, engine.List("", "embedding"), 1)
	assert.Len(t, engine.List("completed", "inference"), 1)
}

func TestEngineEagerSweepOnSubmit(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Retention = 10 * time.Millisecond

	engine := newTestEngine(t, cfg, echoWork)

	first, err := engine.Submit(map[string]any{"input": "old"})
	require.NoError(t, err)
	waitForStatus(t, engine, first.ID, domain.TaskStatusCompleted)

	// Let the first task age past the retention window, then submit again:
	// the eager sweep must evict it without waiting for the timer.
	time.Sleep(30 * time.Millisecond)
	second, err := engine.Submit(map[string]any{"input": "new"})
	require.NoError(t, err)

	_, err = engine.Get(first.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	_, err = engine.Get(second.ID)
	assert.NoError(t, err)
}

func TestEngineStopDrainsInFlightTasks(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Timeout = 10 * time.Second

	engine := NewEngine(store.NewMemoryTaskStore(), cfg, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, setupTestLogger(), prometheus.NewRegistry())
	engine.Start()

	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		created, err := engine.Submit(map[string]any{})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	engine.Stop(2 * time.Second)

	for _, id := range ids {
		task, err := engine.Get(id)
		require.NoError(t, err)
		assert.True(t, task.IsTerminal(), "in-flight task left non-terminal after Stop")
		assert.NotNil(t, task.CompletedAt)
	}
}

func TestEngineIDsUniqueAcrossEviction(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Retention = time.Nanosecond

	engine := newTestEngine(t, cfg, echoWork)

	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 20; i++ {
		created, err := engine.Submit(map[string]any{})
		require.NoError(t, err)
		require.False(t, seen[created.ID], "task ID reused")
		seen[created.ID] = true
		waitForStatus(t, engine, created.ID, domain.TaskStatusCompleted)
	}
}
