package cluster

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task pairs a unit of work with its one-shot result and lifecycle status.
//
// A Task is executed by at most one worker, at most once. Its status only
// moves forward and its [Future] settles exactly once.
type Task[R Resource, T any] struct {
	id          string
	description string
	work        Work[R, T]
	future      *Future[T]
	submittedAt time.Time

	mu         sync.Mutex
	status     Status
	startedAt  time.Time
	finishedAt time.Time
}

// TaskOption configures a single task at submission time.
type TaskOption func(*taskConfig)

type taskConfig struct {
	description string
}

// WithDescription attaches a human-readable label to the task. The label
// shows up in logs and task events.
func WithDescription(description string) TaskOption {
	return func(cfg *taskConfig) {
		cfg.description = description
	}
}

func newTask[R Resource, T any](id string, work Work[R, T], description string) *Task[R, T] {
	return &Task[R, T]{
		id:          id,
		description: description,
		work:        work,
		future:      newFuture[T](id),
		submittedAt: time.Now(),
		status:      StatusPending,
	}
}

// ID returns the task's unique identifier.
func (t *Task[R, T]) ID() string {
	return t.id
}

// Description returns the optional label given at submission.
func (t *Task[R, T]) Description() string {
	return t.description
}

// Future returns the read side of the task's result.
func (t *Task[R, T]) Future() *Future[T] {
	return t.future
}

// Status returns the current lifecycle status.
func (t *Task[R, T]) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Label formats the task for log lines as "id{ description }".
func (t *Task[R, T]) Label() string {
	if t.description == "" {
		return t.id
	}
	return fmt.Sprintf("%s{ %s }", t.id, t.description)
}

// transition moves the task to next unless it already reached a terminal
// state. It reports whether the transition happened.
func (t *Task[R, T]) transition(next Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return false
	}
	switch next {
	case StatusExecuting:
		if t.status != StatusPending {
			return false
		}
		t.startedAt = time.Now()
	case StatusAbandoned:
		if t.status != StatusPending {
			return false
		}
		t.finishedAt = time.Now()
	default:
		t.finishedAt = time.Now()
	}
	t.status = next
	return true
}

// duration returns how long the work ran, or zero if it never started.
func (t *Task[R, T]) duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.finishedAt.IsZero() {
		return 0
	}
	return t.finishedAt.Sub(t.startedAt)
}

// run executes the work against resource and settles the future.
//
// run never panics: a panic inside the work is converted into a *PanicError.
// The returned error is the one the future was settled with.
func (t *Task[R, T]) run(ctx context.Context, resource R) error {
	if !t.transition(StatusExecuting) {
		return fmt.Errorf("task %s: cannot run from status %s", t.id, t.Status())
	}

	value, err := t.safeWork(ctx, resource)
	if err != nil {
		t.transition(StatusFailed)
		t.future.settle(value, err)
		return err
	}

	t.transition(StatusFinished)
	t.future.settle(value, nil)
	return nil
}

// safeWork calls the work with panic recovery.
func (t *Task[R, T]) safeWork(ctx context.Context, resource R) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = &PanicError{
				TaskID:        t.id,
				CorrelationID: uuid.NewString(),
				Value:         r,
				Stack:         debug.Stack(),
			}
		}
	}()
	return t.work(ctx, resource)
}

// abandon rejects a task that never started. It is a no-op for tasks
// already past pending.
func (t *Task[R, T]) abandon(err error) bool {
	if !t.transition(StatusAbandoned) {
		return false
	}
	var zero T
	t.future.settle(zero, err)
	return true
}
