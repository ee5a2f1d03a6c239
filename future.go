package cluster

import (
	"context"
	"sync"
)

// Future is the read side of a task's one-shot result.
//
// A Future starts unsettled and is settled exactly once, either with a value
// or with an error. Any number of goroutines may wait on it. The write side
// is private to the task that owns it.
type Future[T any] struct {
	id   string
	once sync.Once
	done chan struct{}

	value T
	err   error
}

func newFuture[T any](id string) *Future[T] {
	return &Future[T]{
		id:   id,
		done: make(chan struct{}),
	}
}

// rejectedFuture returns a future already settled with err.
func rejectedFuture[T any](id string, err error) *Future[T] {
	f := newFuture[T](id)
	var zero T
	f.settle(zero, err)
	return f
}

// settle stores the outcome and wakes all waiters. Only the first call has
// any effect; it reports whether this call was the one that settled.
func (f *Future[T]) settle(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// ID returns the ID of the task this future belongs to.
func (f *Future[T]) ID() string {
	return f.id
}

// Done returns a channel that is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx is done.
//
// The cluster imposes no timeout of its own, so callers that cannot wait
// forever should pass a context with a deadline. If ctx ends first, Await
// returns ctx.Err() and the task keeps running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the outcome without blocking. ok is false while the future
// is still unsettled.
func (f *Future[T]) Peek() (value T, ok bool, err error) {
	select {
	case <-f.done:
		return f.value, true, f.err
	default:
		var zero T
		return zero, false, nil
	}
}
