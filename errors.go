package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLaunched is returned for work submitted before [Cluster.Launch].
	ErrNotLaunched = errors.New("cluster: not launched")

	// ErrAlreadyLaunched is returned by a second call to [Cluster.Launch].
	ErrAlreadyLaunched = errors.New("cluster: already launched")

	// ErrClosed is returned for work submitted after close, and settles
	// every task still queued when its worker closes.
	ErrClosed = errors.New("cluster: closed")

	// ErrNoWorkers is returned when there is no worker to route work to.
	ErrNoWorkers = errors.New("cluster: no workers")
)

// PanicError is the error a [Future] settles with when the task's work
// panics. The correlation ID is logged alongside the full stack trace so a
// caller-visible error can be matched to server-side logs.
type PanicError struct {
	TaskID        string
	CorrelationID string
	Value         any
	Stack         []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked (correlation_id: %s): %v", e.TaskID, e.CorrelationID, e.Value)
}
