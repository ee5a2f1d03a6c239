package store

import "time"

// TaskRecord is the storage representation of one submitted task.
//
// It is built from task events and serialised as-is by the REST API and the
// SSE stream, so it carries plain strings instead of cluster types.
type TaskRecord struct {
	// ID is the task's unique identifier.
	ID string `json:"id"`

	// Description is the optional label given at submission.
	Description string `json:"description,omitempty"`

	// WorkerID is the 1-based worker the task was routed to.
	WorkerID int `json:"worker_id"`

	// Status is the task's latest status ("pending", "executing", ...).
	Status string `json:"status"`

	// SubmittedAt is when the task was queued.
	SubmittedAt time.Time `json:"submitted_at"`

	// StartedAt is when a worker began running the task.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt is when the task settled.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// DurationMs is how long the work ran, in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// Error contains the error message if the task failed or was abandoned.
	Error *string `json:"error"`
}

// WorkerState is one worker's load as last sampled.
type WorkerState struct {
	// ID is the worker's 1-based identifier.
	ID int `json:"id"`

	// QueueLength is the number of tasks waiting on the worker.
	QueueLength int `json:"queue_length"`

	// Running reports whether the worker loop is active.
	Running bool `json:"running"`
}

// Event types published to subscribers.
const (
	EventTask    = "task"
	EventWorkers = "workers"
)

// Event is one change published to subscribers: either a task record or a
// fresh set of worker states.
type Event struct {
	Type    string        `json:"type"`
	Task    *TaskRecord   `json:"task,omitempty"`
	Workers []WorkerState `json:"workers,omitempty"`
}

// Store defines the interface for storing and subscribing to task records
// and worker states.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Upsert applies fn to the record with the given ID, creating an empty
	// one first if needed, and notifies all subscribers with the result.
	// fn runs under the store's lock and must not call back into the store.
	Upsert(id string, fn func(rec *TaskRecord)) TaskRecord

	// Get returns the record with the given ID.
	Get(id string) (TaskRecord, bool)

	// GetAll returns every retained record, oldest first.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []TaskRecord

	// SetWorkers replaces the worker states and notifies all subscribers.
	SetWorkers(workers []WorkerState)

	// Workers returns a copy of the latest worker states.
	Workers() []WorkerState

	// Subscribe returns a channel that receives every change.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
