// Package tasks runs long simulations and validations in the background.
// Callers submit jobs, poll or await their status, and cancel them; the
// manager owns every task record and bounds worker concurrency.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTaskNotFound indicates an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrAwaitTimeout indicates Await expired before the task finished.
	// The task keeps running.
	ErrAwaitTimeout = errors.New("await timed out")
)

// Status is a task lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is a unit of background work. Run reports progress through the
// callback at its own checkpoints and must return promptly once ctx is
// cancelled.
type Job interface {
	Kind() string
	Run(ctx context.Context, report func(completed, total int)) (any, error)
}

// Task is a caller-visible snapshot of one submission. Progress is a
// fraction in [0, 1] and never decreases.
type Task struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Result      any       `json:"result,omitempty"`
	Err         string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

type task struct {
	Task
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager schedules submitted jobs onto a bounded worker pool. Safe for
// concurrent use; the registry is the only shared mutable state.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*task
	sem   *semaphore.Weighted
	log   zerolog.Logger
}

// NewManager creates a manager running at most workers jobs concurrently.
func NewManager(workers int, logger zerolog.Logger) *Manager {
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		tasks: make(map[string]*task),
		sem:   semaphore.NewWeighted(int64(workers)),
		log:   logger.With().Str("component", "tasks").Logger(),
	}
}

// Submit registers the job and starts it in the background, queueing
// behind the concurrency cap. Returns the task id immediately.
func (m *Manager) Submit(job Job) string {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		Task: Task{
			ID:          uuid.NewString(),
			Kind:        job.Kind(),
			Status:      StatusPending,
			SubmittedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	m.log.Info().Str("task", t.ID).Str("kind", t.Kind).Msg("task submitted")
	go m.run(t, job, ctx)
	return t.ID
}

func (m *Manager) run(t *task, job Job, ctx context.Context) {
	defer close(t.done)
	defer t.cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		// Cancelled while queued.
		m.finish(t, nil, ctx.Err())
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	t.Status = StatusRunning
	t.StartedAt = time.Now()
	m.mu.Unlock()

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		result, err = job.Run(ctx, func(completed, total int) {
			m.setProgress(t, completed, total)
		})
	}()

	m.finish(t, result, err)
}

func (m *Manager) finish(t *task, result any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.FinishedAt = time.Now()
	switch {
	case err == nil:
		t.Status = StatusCompleted
		t.Progress = 1
		t.Result = result
	case errors.Is(err, context.Canceled):
		t.Status = StatusCancelled
	default:
		t.Status = StatusFailed
		t.Err = err.Error()
	}

	m.log.Info().
		Str("task", t.ID).
		Str("status", string(t.Status)).
		Dur("elapsed", t.FinishedAt.Sub(t.SubmittedAt)).
		Msg("task finished")
}

// setProgress advances the task's progress fraction. Late or reordered
// checkpoint reports never move it backwards.
func (m *Manager) setProgress(t *task, completed, total int) {
	if total <= 0 {
		return
	}
	frac := float64(completed) / float64(total)
	if frac > 1 {
		frac = 1
	}

	m.mu.Lock()
	if frac > t.Progress {
		t.Progress = frac
	}
	m.mu.Unlock()
}

// Status returns a snapshot of the task.
func (m *Manager) Status(id string) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Task, nil
}

// Await blocks until the task reaches a terminal state or the timeout
// expires. On timeout it returns ErrAwaitTimeout and the task keeps
// running.
func (m *Manager) Await(id string, timeout time.Duration) (Task, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return m.Status(id)
	case <-timer.C:
		return Task{}, fmt.Errorf("%w: task %s after %s", ErrAwaitTimeout, id, timeout)
	}
}

// Cancel requests cancellation of a pending or running task. Returns false
// for unknown ids and tasks already in a terminal state. The task reaches
// cancelled once the job observes the context, at its next checkpoint.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	t, ok := m.tasks[id]
	terminal := ok && t.Status.Terminal()
	m.mu.RUnlock()

	if !ok || terminal {
		return false
	}
	m.log.Info().Str("task", id).Msg("cancellation requested")
	t.cancel()
	return true
}

// List returns snapshots of every known task, oldest submission first.
func (m *Manager) List() []Task {
	m.mu.RLock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Task)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Clear removes a terminal task from the registry. Returns false if the
// task is unknown or still in flight.
func (m *Manager) Clear(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || !t.Status.Terminal() {
		return false
	}
	delete(m.tasks, id)
	return true
}
