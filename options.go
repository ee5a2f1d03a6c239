package cluster

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultWorkers is the number of workers (and resources) created when
	// [WithWorkers] is not given.
	DefaultWorkers = 4

	// DefaultPollInterval is the pause between execution cycles when
	// [WithPollInterval] is not given.
	DefaultPollInterval = 30 * time.Millisecond
)

// DefaultArgs are the resource launch arguments used when [WithArgs] is not
// given.
var DefaultArgs = []string{"--no-sandbox"}

// clusterConfig holds mutable state during Cluster construction.
type clusterConfig struct {
	workers      int
	pollInterval time.Duration
	resource     ResourceSettings
	logger       *slog.Logger
	newID        func() string
	callbacks    []func(TaskEvent)
	registerer   prometheus.Registerer
}

// Option is a function that configures a [Cluster] during construction.
//
// Option implements the functional options pattern. Options return an
// error if validation fails, which [New] passes back to the caller.
type Option func(*clusterConfig) error

// WithWorkers sets the number of workers, and therefore resources, in the
// pool. The pool is never resized after [Cluster.Launch]. Defaults to 4.
//
// Returns an error if n is zero or negative.
func WithWorkers(n int) Option {
	return func(cfg *clusterConfig) error {
		if n <= 0 {
			return errors.New("worker count must be positive")
		}
		cfg.workers = n
		return nil
	}
}

// WithPollInterval sets the pause every worker takes between execution
// cycles. Each worker runs at most one task per interval. Defaults to 30ms.
//
// A zero interval runs queued tasks back to back; an idle zero-interval
// worker parks until the next task is queued instead of spinning. While its
// resource is disconnected, a zero-interval worker re-checks it every 10ms.
//
// Returns an error if d is negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *clusterConfig) error {
		if d < 0 {
			return errors.New("poll interval cannot be negative")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithResourceSettings replaces the settings passed to the [Factory].
func WithResourceSettings(s ResourceSettings) Option {
	return func(cfg *clusterConfig) error {
		cfg.resource = ResourceSettings{
			Headless: s.Headless,
			Args:     append([]string(nil), s.Args...),
		}
		return nil
	}
}

// WithHeadless sets whether resources are launched headless. Defaults to
// true.
func WithHeadless(headless bool) Option {
	return func(cfg *clusterConfig) error {
		cfg.resource.Headless = headless
		return nil
	}
}

// WithArgs sets the resource launch arguments. Defaults to [DefaultArgs].
func WithArgs(args ...string) Option {
	return func(cfg *clusterConfig) error {
		cfg.resource.Args = append([]string(nil), args...)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the cluster and its workers.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clusterConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithIDGenerator replaces the task ID generator. IDs must be unique for
// the lifetime of the cluster; their format is opaque. Defaults to random
// UUIDs.
//
// Returns an error if gen is nil.
func WithIDGenerator(gen func() string) Option {
	return func(cfg *clusterConfig) error {
		if gen == nil {
			return errors.New("id generator cannot be nil")
		}
		cfg.newID = gen
		return nil
	}
}

// WithTaskCallback registers a function called on every [TaskEvent].
//
// Callbacks run synchronously on the goroutine that caused the event: the
// submitting caller for pending events, the worker loop for the rest. They
// must not block or submit work to the same cluster. Panics are recovered
// and logged.
//
// Multiple callbacks run in registration order. Nil callbacks are ignored.
func WithTaskCallback(cb func(TaskEvent)) Option {
	return func(cfg *clusterConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}

// WithMetricsRegisterer registers the cluster's Prometheus metrics on reg.
// Without it metrics are still collected but not exported.
//
// Returns an error if reg is nil.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *clusterConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}
