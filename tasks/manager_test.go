package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJob is a controllable job for exercising the manager.
type stubJob struct {
	kind string
	run  func(ctx context.Context, report func(completed, total int)) (any, error)
}

func (j stubJob) Kind() string { return j.kind }

func (j stubJob) Run(ctx context.Context, report func(completed, total int)) (any, error) {
	return j.run(ctx, report)
}

func TestManager_SubmitAndAwait(t *testing.T) {
	m := NewManager(2, zerolog.Nop())

	id := m.Submit(stubJob{kind: "stub", run: func(_ context.Context, report func(int, int)) (any, error) {
		report(500, 1000)
		report(1000, 1000)
		return "payload", nil
	}})
	require.NotEmpty(t, id)

	task, err := m.Await(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, "payload", task.Result)
	assert.Equal(t, 1.0, task.Progress)
	assert.Equal(t, "stub", task.Kind)
	assert.False(t, task.FinishedAt.IsZero())
}

func TestManager_AwaitTimeoutLeavesTaskRunning(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(1, zerolog.Nop())

	id := m.Submit(stubJob{kind: "slow", run: func(ctx context.Context, _ func(int, int)) (any, error) {
		select {
		case <-release:
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})

	_, err := m.Await(id, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrAwaitTimeout)

	task, err := m.Status(id)
	require.NoError(t, err)
	assert.False(t, task.Status.Terminal(), "timeout must not stop the task")

	close(release)
	task, err = m.Await(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, "late", task.Result)
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(1, zerolog.Nop())

	id := m.Submit(stubJob{kind: "blocked", run: func(ctx context.Context, _ func(int, int)) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	require.True(t, m.Cancel(id))

	task, err := m.Await(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, task.Status)

	assert.False(t, m.Cancel(id), "terminal tasks cannot be cancelled again")
}

func TestManager_PanicBecomesFailed(t *testing.T) {
	m := NewManager(1, zerolog.Nop())

	id := m.Submit(stubJob{kind: "bad", run: func(context.Context, func(int, int)) (any, error) {
		panic("boom")
	}})

	task, err := m.Await(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Contains(t, task.Err, "boom")
}

func TestManager_ErrorCapturedOnRecord(t *testing.T) {
	m := NewManager(1, zerolog.Nop())

	id := m.Submit(stubJob{kind: "failing", run: func(context.Context, func(int, int)) (any, error) {
		return nil, errors.New("numerical instability")
	}})

	task, err := m.Await(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "numerical instability", task.Err)
	assert.Nil(t, task.Result)
}

func TestManager_ProgressNeverDecreases(t *testing.T) {
	m := NewManager(1, zerolog.Nop())

	id := m.Submit(stubJob{kind: "noisy", run: func(_ context.Context, report func(int, int)) (any, error) {
		report(80, 100)
		report(30, 100) // late checkpoint, must not move progress back
		report(90, 100)
		return nil, nil
	}})

	task, err := m.Await(id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1.0, task.Progress, "success pins progress at 1")

	// Replay the same sequence against a blocked task to observe the
	// intermediate clamping.
	release := make(chan struct{})
	checkpoints := make(chan struct{}, 1)
	id = m.Submit(stubJob{kind: "noisy", run: func(_ context.Context, report func(int, int)) (any, error) {
		report(80, 100)
		report(30, 100)
		checkpoints <- struct{}{}
		<-release
		return nil, nil
	}})

	<-checkpoints
	task, err = m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, 0.8, task.Progress)

	close(release)
	_, err = m.Await(id, time.Second)
	require.NoError(t, err)
}

func TestManager_ConcurrencyCap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	m := NewManager(1, zerolog.Nop())

	blocker := func(ctx context.Context, _ func(int, int)) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	first := m.Submit(stubJob{kind: "a", run: func(ctx context.Context, r func(int, int)) (any, error) {
		started <- "a"
		return blocker(ctx, r)
	}})
	second := m.Submit(stubJob{kind: "b", run: func(ctx context.Context, r func(int, int)) (any, error) {
		started <- "b"
		return blocker(ctx, r)
	}})

	<-started
	require.Eventually(t, func() bool {
		task, err := m.Status(first)
		return err == nil && task.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	task, err := m.Status(second)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status, "second job queues behind the worker cap")

	close(release)
	for _, id := range []string{first, second} {
		task, err := m.Await(id, time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
	}
}

func TestManager_CancelQueuedTask(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := NewManager(1, zerolog.Nop())

	m.Submit(stubJob{kind: "hog", run: func(ctx context.Context, _ func(int, int)) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})
	queued := m.Submit(stubJob{kind: "queued", run: func(ctx context.Context, _ func(int, int)) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	require.True(t, m.Cancel(queued))
	task, err := m.Await(queued, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, task.Status)
}

func TestManager_ListAndClear(t *testing.T) {
	m := NewManager(2, zerolog.Nop())

	quick := func(context.Context, func(int, int)) (any, error) { return nil, nil }
	first := m.Submit(stubJob{kind: "one", run: quick})
	second := m.Submit(stubJob{kind: "two", run: quick})

	_, err := m.Await(first, time.Second)
	require.NoError(t, err)
	_, err = m.Await(second, time.Second)
	require.NoError(t, err)

	assert.Len(t, m.List(), 2)

	assert.True(t, m.Clear(first))
	assert.Len(t, m.List(), 1)
	_, err = m.Status(first)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.False(t, m.Clear(first), "already cleared")
}

func TestManager_ClearRejectsRunningTask(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(1, zerolog.Nop())

	id := m.Submit(stubJob{kind: "busy", run: func(ctx context.Context, _ func(int, int)) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}})

	require.Eventually(t, func() bool {
		task, err := m.Status(id)
		return err == nil && task.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	assert.False(t, m.Clear(id), "in-flight tasks cannot be cleared")

	close(release)
	_, err := m.Await(id, time.Second)
	require.NoError(t, err)
	assert.True(t, m.Clear(id))
}

func TestManager_UnknownID(t *testing.T) {
	m := NewManager(1, zerolog.Nop())

	_, err := m.Status("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = m.Await("nope", time.Millisecond)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.False(t, m.Cancel("nope"))
	assert.False(t, m.Clear("nope"))
}
