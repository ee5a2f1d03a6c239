package cluster

import "context"

// Resource is a long-lived execution handle owned by exactly one [Worker].
//
// A Resource is created by a [Factory] during [Cluster.Launch] and released
// by [Worker.Close]. Nothing other than the owning Worker touches it.
type Resource interface {
	// Connected reports whether the resource can currently accept work.
	// Workers poll it once per cycle; a disconnected resource makes the
	// worker skip the cycle without dequeuing.
	Connected() bool

	// Close releases the resource. It is called exactly once.
	Close() error
}

// ResourceSettings is passed through unchanged to the [Factory].
type ResourceSettings struct {
	// Headless runs the browser without a visible window.
	Headless bool

	// Args are extra launch arguments, e.g. "--no-sandbox".
	Args []string
}

// Factory creates the resource for the worker at the given zero-based index.
// A returned error aborts [Cluster.Launch].
type Factory[R Resource] func(ctx context.Context, index int, settings ResourceSettings) (R, error)

// Work is a caller-supplied unit of work run against a worker's resource.
//
// The context carries the values of the context given to [Cluster.Launch]
// but is never cancelled by [Cluster.Close]: in-flight work runs to
// completion.
type Work[R Resource, T any] func(ctx context.Context, resource R) (T, error)
