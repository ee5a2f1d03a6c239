package cluster

import (
	"log/slog"
	"time"
)

// TaskEvent describes one status change of a task.
//
// Events are emitted when a task is queued (pending), when a worker starts
// it (executing), and when it settles (finished, failed or abandoned).
type TaskEvent struct {
	// TaskID is the unique identifier of the task.
	TaskID string

	// Description is the optional label given at submission.
	Description string

	// WorkerID is the 1-based ID of the worker the task was routed to.
	WorkerID int

	// Status is the status the task just entered.
	Status Status

	// Err is the error the task settled with, if any.
	Err error

	// Duration is how long the work ran. Zero until the task settles.
	Duration time.Duration

	// At is when the event was emitted.
	At time.Time
}

// emitter fans task events out to the registered callbacks.
type emitter struct {
	callbacks []func(TaskEvent)
	logger    *slog.Logger
}

func (e *emitter) emit(ev TaskEvent) {
	if e == nil || len(e.callbacks) == 0 {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, cb := range e.callbacks {
		invokeCallbackSafe(cb, ev, e.logger)
	}
}

// invokeCallbackSafe calls a task callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(TaskEvent), ev TaskEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task callback panicked",
				"panic", r,
				"task", ev.TaskID,
				"status", ev.Status.String(),
			)
		}
	}()
	cb(ev)
}
