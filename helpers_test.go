package cluster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeResource is an in-memory Resource whose connectivity and close
// outcome are controlled by the test.
type fakeResource struct {
	index     int
	settings  ResourceSettings
	connected atomic.Bool
	polls     atomic.Int32
	closed    atomic.Int32
	closeErr  error
}

func newFakeResource(index int) *fakeResource {
	r := &fakeResource{index: index}
	r.connected.Store(true)
	return r
}

func (r *fakeResource) Connected() bool {
	r.polls.Add(1)
	return r.connected.Load()
}

func (r *fakeResource) Close() error {
	r.closed.Add(1)
	return r.closeErr
}

// fakeFactory hands out fakeResources and remembers them.
type fakeFactory struct {
	mu        sync.Mutex
	created   []*fakeResource
	failAt    int // index to fail on; -1 never fails
	failErr   error
	closeErrs map[int]error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{failAt: -1}
}

func (f *fakeFactory) create(_ context.Context, index int, settings ResourceSettings) (*fakeResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if index == f.failAt {
		if f.failErr == nil {
			f.failErr = errors.New("browser failed to start")
		}
		return nil, f.failErr
	}

	r := newFakeResource(index)
	r.settings = settings
	r.closeErr = f.closeErrs[index]
	f.created = append(f.created, r)
	return r, nil
}

func (f *fakeFactory) resources() []*fakeResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]*fakeResource, len(f.created))
	copy(cp, f.created)
	return cp
}

// newTestWorker builds a worker outside any cluster.
func newTestWorker(id int, interval time.Duration) (*Worker[*fakeResource, string], *fakeResource) {
	r := newFakeResource(id - 1)
	return newWorker[*fakeResource, string](id, r, interval, testLogger(), nil, nil), r
}

// valueWork returns work that yields v.
func valueWork(v string) Work[*fakeResource, string] {
	return func(context.Context, *fakeResource) (string, error) {
		return v, nil
	}
}

// await waits for f with a test-friendly timeout.
func await[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("future %s did not settle in time", f.ID())
	}
	return v, err
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// eventRecorder collects task events from a callback.
type eventRecorder struct {
	mu     sync.Mutex
	events []TaskEvent
}

func (r *eventRecorder) record(ev TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]TaskEvent, len(r.events))
	copy(cp, r.events)
	return cp
}

func (r *eventRecorder) statusesFor(taskID string) []Status {
	var statuses []Status
	for _, ev := range r.snapshot() {
		if ev.TaskID == taskID {
			statuses = append(statuses, ev.Status)
		}
	}
	return statuses
}
