package cluster

// Status represents the lifecycle state of a [Task].
//
// A task moves forward only: pending → executing → finished or failed.
// Tasks that are still queued when their worker closes go straight from
// pending to abandoned.
type Status string

const (
	// StatusPending indicates the task is waiting in a worker queue.
	StatusPending Status = "pending"

	// StatusExecuting indicates the task's work is running.
	StatusExecuting Status = "executing"

	// StatusFinished indicates the work returned a value.
	StatusFinished Status = "finished"

	// StatusFailed indicates the work returned an error or panicked.
	StatusFailed Status = "failed"

	// StatusAbandoned indicates the task was rejected with [ErrClosed]
	// before any worker dequeued it.
	StatusAbandoned Status = "abandoned"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}
