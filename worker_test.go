package cluster

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestWorker_FIFO verifies that tasks queued on one worker start in
// submission order.
func TestWorker_FIFO(t *testing.T) {
	w, _ := newTestWorker(1, time.Millisecond)

	var mu sync.Mutex
	var order []string
	record := func(name string) Work[*fakeResource, string] {
		return func(context.Context, *fakeResource) (string, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	tasks := []*Task[*fakeResource, string]{
		newTask("a", record("A"), ""),
		newTask("b", record("B"), ""),
		newTask("c", record("C"), ""),
	}
	for _, task := range tasks {
		if err := w.Enqueue(task); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	w.Launch(context.Background())
	defer w.Close(context.Background())

	for _, task := range tasks {
		if _, err := await(t, task.Future()); err != nil {
			t.Fatalf("task %s error = %v", task.ID(), err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "A,B,C" {
		t.Errorf("execution order = %v, want [A B C]", order)
	}
}

// TestWorker_FailureIsolated verifies that a failing task settles only its
// own future and the worker keeps processing.
func TestWorker_FailureIsolated(t *testing.T) {
	w, _ := newTestWorker(1, time.Millisecond)

	wantErr := errors.New("navigation failed")
	failing := newTask("bad", func(context.Context, *fakeResource) (string, error) {
		return "", wantErr
	}, "")
	panicking := newTask("worse", func(context.Context, *fakeResource) (string, error) {
		panic("unexpected")
	}, "")
	healthy := newTask("good", valueWork("ok"), "")

	for _, task := range []*Task[*fakeResource, string]{failing, panicking, healthy} {
		_ = w.Enqueue(task)
	}

	w.Launch(context.Background())
	defer w.Close(context.Background())

	if _, err := await(t, failing.Future()); !errors.Is(err, wantErr) {
		t.Errorf("failing task error = %v, want %v", err, wantErr)
	}

	var panicErr *PanicError
	if _, err := await(t, panicking.Future()); !errors.As(err, &panicErr) {
		t.Errorf("panicking task error = %v, want *PanicError", err)
	}

	v, err := await(t, healthy.Future())
	if err != nil || v != "ok" {
		t.Errorf("healthy task = (%q, %v), want (%q, nil)", v, err, "ok")
	}
	if !w.Running() {
		t.Error("worker stopped running after task failures")
	}
}

// TestWorker_SkipsCyclesWhileDisconnected verifies that nothing is dequeued
// while the resource reports itself disconnected.
func TestWorker_SkipsCyclesWhileDisconnected(t *testing.T) {
	w, r := newTestWorker(1, 2*time.Millisecond)
	r.connected.Store(false)

	task := newTask("t1", valueWork("v"), "")
	_ = w.Enqueue(task)

	w.Launch(context.Background())
	defer w.Close(context.Background())

	waitFor(t, time.Second, func() bool { return r.polls.Load() >= 3 })

	if w.QueueLength() != 1 {
		t.Errorf("QueueLength() = %d while disconnected, want 1", w.QueueLength())
	}
	if task.Status() != StatusPending {
		t.Errorf("Status() = %q while disconnected, want %q", task.Status(), StatusPending)
	}

	r.connected.Store(true)

	if v, err := await(t, task.Future()); err != nil || v != "v" {
		t.Errorf("Await() = (%q, %v), want (%q, nil)", v, err, "v")
	}
}

// TestWorker_ThrottleBetweenTasks verifies that consecutive tasks on one
// worker start at least one poll interval apart.
func TestWorker_ThrottleBetweenTasks(t *testing.T) {
	const interval = 40 * time.Millisecond
	w, _ := newTestWorker(1, interval)

	var mu sync.Mutex
	var starts []time.Time
	work := func(context.Context, *fakeResource) (string, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return "", nil
	}

	tasks := make([]*Task[*fakeResource, string], 3)
	for i := range tasks {
		tasks[i] = newTask(string(rune('a'+i)), work, "")
		_ = w.Enqueue(tasks[i])
	}

	w.Launch(context.Background())
	defer w.Close(context.Background())

	for _, task := range tasks {
		_, _ = await(t, task.Future())
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval {
			t.Errorf("gap between task %d and %d = %v, want >= %v", i-1, i, gap, interval)
		}
	}
}

// TestWorker_WakesEveryIntervalWhenIdle verifies that an idle worker still
// checks its resource once per interval, and not more often.
func TestWorker_WakesEveryIntervalWhenIdle(t *testing.T) {
	const interval = 20 * time.Millisecond
	w, r := newTestWorker(1, interval)

	w.Launch(context.Background())
	time.Sleep(110 * time.Millisecond)
	_ = w.Close(context.Background())

	polls := r.polls.Load()
	if polls == 0 {
		t.Error("idle worker never woke up")
	}
	if polls > 6 {
		t.Errorf("idle worker polled %d times in 110ms, want at most 6 with a %v interval", polls, interval)
	}
}

// TestWorker_ZeroIntervalParksUntilEnqueue verifies that a zero-interval
// worker picks up work queued after it went idle.
func TestWorker_ZeroIntervalParksUntilEnqueue(t *testing.T) {
	w, r := newTestWorker(1, 0)

	w.Launch(context.Background())
	defer w.Close(context.Background())

	time.Sleep(20 * time.Millisecond)
	idlePolls := r.polls.Load()
	if idlePolls > 2 {
		t.Errorf("idle zero-interval worker polled %d times, want it parked", idlePolls)
	}

	task := newTask("late", valueWork("v"), "")
	_ = w.Enqueue(task)

	if v, err := await(t, task.Future()); err != nil || v != "v" {
		t.Errorf("Await() = (%q, %v), want (%q, nil)", v, err, "v")
	}
}

// TestWorker_ZeroIntervalDisconnectedDoesNotSpin verifies that a
// zero-interval worker with queued work and a disconnected resource polls
// at a bounded rate, then runs the work once the resource comes back.
func TestWorker_ZeroIntervalDisconnectedDoesNotSpin(t *testing.T) {
	w, r := newTestWorker(1, 0)
	r.connected.Store(false)

	task := newTask("waiting", valueWork("v"), "")
	_ = w.Enqueue(task)

	w.Launch(context.Background())
	defer w.Close(context.Background())

	time.Sleep(50 * time.Millisecond)
	polls := r.polls.Load()
	if polls == 0 {
		t.Error("disconnected worker never polled its resource")
	}
	if polls > 10 {
		t.Errorf("disconnected worker polled %d times in 50ms, want at most 10 with a %v retry", polls, disconnectedRetry)
	}
	if task.Status() != StatusPending {
		t.Errorf("Status() = %q while disconnected, want %q", task.Status(), StatusPending)
	}

	r.connected.Store(true)

	if v, err := await(t, task.Future()); err != nil || v != "v" {
		t.Errorf("Await() = (%q, %v), want (%q, nil)", v, err, "v")
	}
}

// TestWorker_CloseRunsInFlightRejectsQueued starts one task, queues a
// second, and closes: the first completes, the second is rejected.
func TestWorker_CloseRunsInFlightRejectsQueued(t *testing.T) {
	w, r := newTestWorker(1, time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	inFlight := newTask("first", func(context.Context, *fakeResource) (string, error) {
		close(started)
		<-release
		return "first", nil
	}, "")
	queued := newTask("second", valueWork("second"), "")

	_ = w.Enqueue(inFlight)
	_ = w.Enqueue(queued)

	w.Launch(context.Background())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first task never started")
	}

	closed := make(chan error, 1)
	go func() {
		closed <- w.Close(context.Background())
	}()

	// the queued task is rejected without waiting for the in-flight one
	if _, err := await(t, queued.Future()); !errors.Is(err, ErrClosed) {
		t.Errorf("queued task error = %v, want %v", err, ErrClosed)
	}
	if queued.Status() != StatusAbandoned {
		t.Errorf("queued task Status() = %q, want %q", queued.Status(), StatusAbandoned)
	}

	select {
	case err := <-closed:
		t.Fatalf("Close() returned %v before the in-flight task finished", err)
	case <-time.After(30 * time.Millisecond):
	}
	if r.closed.Load() != 0 {
		t.Error("resource released while a task was still using it")
	}

	close(release)

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return after the in-flight task finished")
	}

	if v, err := await(t, inFlight.Future()); err != nil || v != "first" {
		t.Errorf("in-flight task = (%q, %v), want (%q, nil)", v, err, "first")
	}
	if r.closed.Load() != 1 {
		t.Errorf("resource closed %d times, want 1", r.closed.Load())
	}
}

// TestWorker_CloseDeadlineReleasesResource verifies that Close stops
// waiting for a stuck task once its context is done.
func TestWorker_CloseDeadlineReleasesResource(t *testing.T) {
	w, r := newTestWorker(1, time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	stuck := newTask("stuck", func(context.Context, *fakeResource) (string, error) {
		close(started)
		<-release
		return "", nil
	}, "")
	_ = w.Enqueue(stuck)
	w.Launch(context.Background())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := w.Close(ctx); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if r.closed.Load() != 1 {
		t.Errorf("resource closed %d times, want 1", r.closed.Load())
	}
}

func TestWorker_CloseIdempotent(t *testing.T) {
	w, r := newTestWorker(1, time.Millisecond)
	w.Launch(context.Background())

	_ = w.Close(context.Background())
	_ = w.Close(context.Background())

	if r.closed.Load() != 1 {
		t.Errorf("resource closed %d times, want 1", r.closed.Load())
	}
	if w.Running() {
		t.Error("Running() = true after Close")
	}
}

func TestWorker_CloseBeforeLaunch(t *testing.T) {
	w, r := newTestWorker(1, time.Millisecond)

	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.closed.Load() != 1 {
		t.Errorf("resource closed %d times, want 1", r.closed.Load())
	}

	// launching a closed worker is a no-op
	w.Launch(context.Background())
	if w.Running() {
		t.Error("Running() = true after Launch on a closed worker")
	}
}

func TestWorker_EnqueueAfterClose(t *testing.T) {
	w, _ := newTestWorker(1, time.Millisecond)
	_ = w.Close(context.Background())

	err := w.Enqueue(newTask("t1", valueWork("v"), ""))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() error = %v, want %v", err, ErrClosed)
	}
}

func TestWorker_CloseResourceError(t *testing.T) {
	w, r := newTestWorker(3, time.Millisecond)
	r.closeErr = errors.New("browser already gone")

	err := w.Close(context.Background())
	if !errors.Is(err, r.closeErr) {
		t.Errorf("Close() error = %v, want %v", err, r.closeErr)
	}
	if err != nil && !strings.Contains(err.Error(), "worker 3") {
		t.Errorf("Close() error = %v, want it to name the worker", err)
	}
}

func TestWorker_LaunchTwice(t *testing.T) {
	w, _ := newTestWorker(1, time.Millisecond)

	w.Launch(context.Background())
	w.Launch(context.Background()) // second call should be no-op

	task := newTask("t1", valueWork("v"), "")
	_ = w.Enqueue(task)
	if _, err := await(t, task.Future()); err != nil {
		t.Errorf("Await() error = %v", err)
	}

	// must complete without deadlock
	_ = w.Close(context.Background())
}

func TestWorker_ContextCancelStopsLoop(t *testing.T) {
	w, _ := newTestWorker(1, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	w.Launch(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)

	task := newTask("t1", valueWork("v"), "")
	_ = w.Enqueue(task)

	time.Sleep(20 * time.Millisecond)
	if task.Status() != StatusPending {
		t.Errorf("Status() = %q after loop stopped, want %q", task.Status(), StatusPending)
	}

	// Close still rejects what was left behind
	_ = w.Close(context.Background())
	if _, err := await(t, task.Future()); !errors.Is(err, ErrClosed) {
		t.Errorf("Await() error = %v, want %v", err, ErrClosed)
	}
}
