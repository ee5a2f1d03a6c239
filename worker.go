package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pedroviniv/simple-puppeteer-cluster/internal/metrics"
)

// disconnectedRetry is how long a zero-interval worker waits before polling
// a disconnected resource again.
const disconnectedRetry = 10 * time.Millisecond

// Worker owns one [Resource] and a private FIFO queue of tasks.
//
// Once launched, a worker runs its own loop: wait the poll interval, skip
// the cycle if the resource is disconnected, otherwise pop at most one task
// and run it to completion. The interval is a deliberate throttle and is
// honoured even when the queue is empty, so a worker never starts two tasks
// less than one interval apart.
//
// Enqueue and QueueLength are safe for concurrent use. Only the worker's
// own loop pops from the queue and touches the resource.
type Worker[R Resource, T any] struct {
	id       int
	resource R
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector
	events   *emitter

	mu      sync.Mutex
	queue   []*Task[R, T]
	started bool
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// notify wakes a zero-interval worker parked on an empty queue.
	notify chan struct{}
}

func newWorker[R Resource, T any](id int, resource R, interval time.Duration, logger *slog.Logger, m *metrics.Collector, events *emitter) *Worker[R, T] {
	return &Worker[R, T]{
		id:       id,
		resource: resource,
		interval: interval,
		logger:   logger.With("worker", id),
		metrics:  m,
		events:   events,
		notify:   make(chan struct{}, 1),
	}
}

// ID returns the worker's 1-based identifier.
func (w *Worker[R, T]) ID() int {
	return w.id
}

// QueueLength returns the number of tasks waiting in the queue. The task
// currently executing, if any, is not counted.
func (w *Worker[R, T]) QueueLength() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Running reports whether the loop has been launched and not yet closed.
func (w *Worker[R, T]) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Enqueue appends task to the tail of the queue. There is no capacity
// bound. Returns [ErrClosed] once the worker has been closed.
func (w *Worker[R, T]) Enqueue(task *Task[R, T]) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	// announce before the loop can see the task so events stay ordered
	w.events.emit(TaskEvent{
		TaskID:      task.id,
		Description: task.description,
		WorkerID:    w.id,
		Status:      StatusPending,
	})

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.abandon(task)
		return ErrClosed
	}
	w.queue = append(w.queue, task)
	length := len(w.queue)
	w.mu.Unlock()

	w.metrics.SetQueueLength(w.id, length)

	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// pop removes and returns the head of the queue, or nil if it is empty.
func (w *Worker[R, T]) pop() *Task[R, T] {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return nil
	}
	task := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	length := len(w.queue)
	w.mu.Unlock()

	w.metrics.SetQueueLength(w.id, length)
	return task
}

// Launch starts the execution loop in a background goroutine.
//
// Launch is idempotent; calls after the first are no-ops, as is Launch
// after Close. Cancelling ctx stops the loop the same way Close does but
// leaves the queue and resource alone.
func (w *Worker[R, T]) Launch(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.running = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	w.logger.Info("launching worker", "interval", w.interval.String())
	go w.loop(loopCtx)
}

func (w *Worker[R, T]) loop(ctx context.Context) {
	defer w.wg.Done()

	// work outlives Close: only the loop is cancelled, never a running task
	workCtx := context.WithoutCancel(ctx)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !w.Running() {
			return
		}

		wait := w.interval
		if !w.cycle(workCtx) {
			if wait == 0 {
				wait = disconnectedRetry
			}
		} else if wait == 0 && !w.park(ctx) {
			return
		}
		timer.Reset(wait)
	}
}

// park blocks a zero-interval worker until there is something to pop.
// It returns false if the loop should exit.
func (w *Worker[R, T]) park(ctx context.Context) bool {
	if w.QueueLength() > 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-w.notify:
		return true
	}
}

// cycle runs at most one task. It returns false if the cycle was skipped
// because the resource is disconnected.
func (w *Worker[R, T]) cycle(ctx context.Context) bool {
	if !w.resource.Connected() {
		w.metrics.RecordSkippedCycle(w.id)
		w.logger.Debug("resource disconnected, skipping cycle")
		return false
	}

	task := w.pop()
	if task == nil {
		return true
	}

	w.events.emit(TaskEvent{
		TaskID:      task.id,
		Description: task.description,
		WorkerID:    w.id,
		Status:      StatusExecuting,
	})
	w.logger.Info("executing task", "task", task.Label())

	err := task.run(ctx, w.resource)
	duration := task.duration()

	ev := TaskEvent{
		TaskID:      task.id,
		Description: task.description,
		WorkerID:    w.id,
		Status:      task.Status(),
		Err:         err,
		Duration:    duration,
	}

	if err != nil {
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			w.logger.Error("task panic",
				"task", task.Label(),
				"correlation_id", panicErr.CorrelationID,
				"panic", fmt.Sprintf("%v", panicErr.Value),
				"stack", string(panicErr.Stack),
			)
		} else {
			w.logger.Warn("task failed", "task", task.Label(), "error", err.Error())
		}
		w.metrics.RecordCompleted(metrics.OutcomeFailed, duration.Seconds())
	} else {
		w.logger.Info("finished executing task",
			"task", task.Label(),
			"duration_ms", duration.Milliseconds(),
		)
		w.metrics.RecordCompleted(metrics.OutcomeFinished, duration.Seconds())
	}

	w.events.emit(ev)
	return true
}

// Close stops the loop and releases the resource.
//
// A task already dequeued is allowed to finish; Close waits for it until
// ctx is done and then releases the resource regardless. Tasks still in the
// queue are never run: their futures are rejected with [ErrClosed].
//
// Close is idempotent; only the first call closes the resource.
func (w *Worker[R, T]) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.running = false
	abandoned := w.queue
	w.queue = nil
	cancel := w.cancel
	w.mu.Unlock()

	w.logger.Info("worker is being closed", "abandoned_tasks", len(abandoned))

	if cancel != nil {
		cancel()
	}

	for _, task := range abandoned {
		w.abandon(task)
	}
	w.metrics.SetQueueLength(w.id, 0)

	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.wait(ctx); err != nil {
		w.logger.Warn("in-flight task still running, releasing resource anyway", "error", err.Error())
	}

	if err := w.resource.Close(); err != nil {
		return fmt.Errorf("worker %d: close resource: %w", w.id, err)
	}
	w.logger.Info("worker has been successfully closed")
	return nil
}

// abandon rejects a task that will never run.
func (w *Worker[R, T]) abandon(task *Task[R, T]) {
	if !task.abandon(ErrClosed) {
		return
	}
	w.metrics.RecordCompleted(metrics.OutcomeAbandoned, 0)
	w.events.emit(TaskEvent{
		TaskID:      task.id,
		Description: task.description,
		WorkerID:    w.id,
		Status:      StatusAbandoned,
		Err:         ErrClosed,
	})
}

// wait blocks until the loop goroutine exits or ctx is done.
func (w *Worker[R, T]) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
