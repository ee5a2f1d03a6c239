package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWithTaskCallback_PanicIsolated(t *testing.T) {
	rec := &eventRecorder{}
	c := newTestCluster(t, newFakeFactory(),
		WithWorkers(1),
		WithPollInterval(time.Millisecond),
		WithTaskCallback(func(TaskEvent) { panic("callback bug") }),
		WithTaskCallback(rec.record),
	)
	if err := c.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer c.Close(context.Background())

	// must not panic
	f := c.Execute(valueWork("v"))
	if v, err := await(t, f); err != nil || v != "v" {
		t.Fatalf("Await() = (%q, %v), want (%q, nil)", v, err, "v")
	}

	// the later callback still sees every event
	waitFor(t, time.Second, func() bool { return len(rec.statusesFor(f.ID())) == 3 })

	// and the worker is still serving
	if _, err := await(t, c.Execute(valueWork("again"))); err != nil {
		t.Errorf("Await() after callback panic error = %v", err)
	}
}

func TestWithTaskCallback_RegistrationOrder(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(name string) func(TaskEvent) {
		return func(ev TaskEvent) {
			if ev.Status != StatusPending {
				return
			}
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
		}
	}

	c := newTestCluster(t, newFakeFactory(),
		WithWorkers(1),
		WithPollInterval(time.Hour),
		WithTaskCallback(record("first")),
		WithTaskCallback(record("second")),
	)
	if err := c.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer c.Close(context.Background())

	c.Execute(valueWork("v"))

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("callback order = %v, want [first second]", calls)
	}
}

func TestWithTaskCallback_FailureEvent(t *testing.T) {
	rec := &eventRecorder{}
	c := newTestCluster(t, newFakeFactory(),
		WithWorkers(1),
		WithPollInterval(time.Millisecond),
		WithTaskCallback(rec.record),
	)
	if err := c.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer c.Close(context.Background())

	wantErr := errors.New("element not found")
	f := c.Execute(func(context.Context, *fakeResource) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "", wantErr
	})
	_, _ = await(t, f)

	waitFor(t, time.Second, func() bool { return len(rec.statusesFor(f.ID())) == 3 })

	var final TaskEvent
	for _, ev := range rec.snapshot() {
		if ev.TaskID == f.ID() && ev.Status.Terminal() {
			final = ev
		}
	}
	if final.Status != StatusFailed {
		t.Errorf("final Status = %q, want %q", final.Status, StatusFailed)
	}
	if !errors.Is(final.Err, wantErr) {
		t.Errorf("final Err = %v, want %v", final.Err, wantErr)
	}
	if final.WorkerID != 1 {
		t.Errorf("final WorkerID = %d, want 1", final.WorkerID)
	}
	if final.Duration < 5*time.Millisecond {
		t.Errorf("final Duration = %v, want >= 5ms", final.Duration)
	}
	if final.At.IsZero() {
		t.Error("final At is zero")
	}
}
