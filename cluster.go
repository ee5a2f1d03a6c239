package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pedroviniv/simple-puppeteer-cluster/internal/metrics"
)

type state int

const (
	stateNew state = iota
	stateLaunching
	stateRunning
	stateClosed
)

// Settings is the resolved configuration of a [Cluster].
type Settings struct {
	// Workers is the fixed number of workers and resources.
	Workers int

	// PollInterval is the pause between each worker's execution cycles.
	PollInterval time.Duration

	// Resource is passed through to the [Factory].
	Resource ResourceSettings
}

// Cluster distributes work across a fixed pool of workers, each owning one
// resource created by a [Factory].
//
// The typical lifecycle is:
//
//	c, err := cluster.New[*browser.Browser, []byte](browser.Launch, cluster.WithWorkers(2))
//	if err != nil {
//	    return err
//	}
//	if err := c.Launch(ctx); err != nil {
//	    return err
//	}
//	defer c.Close(context.Background())
//
//	img, err := c.Execute(browser.Screenshot(target, 90)).Await(ctx)
//
// Each submitted task goes to the worker with the shortest queue. Tasks on
// the same worker run in submission order; there is no ordering across
// workers. A Cluster cannot be relaunched after Close.
//
// All methods are safe for concurrent use.
type Cluster[R Resource, T any] struct {
	factory  Factory[R]
	settings Settings
	logger   *slog.Logger
	newID    func() string
	events   *emitter
	metrics  *metrics.Collector

	mu      sync.Mutex
	state   state
	workers []*Worker[R, T]

	// dispatchMu makes select-then-enqueue atomic across Execute calls.
	dispatchMu sync.Mutex
}

// New creates a [Cluster] that will build its resources with factory.
//
// Options have these defaults:
//   - Workers: 4
//   - Poll interval: 30ms
//   - Headless: true
//   - Args: ["--no-sandbox"]
//
// No resource is created until [Cluster.Launch]. Returns an error if the
// factory is nil or any option is invalid.
func New[R Resource, T any](factory Factory[R], opts ...Option) (*Cluster[R, T], error) {
	if factory == nil {
		return nil, errors.New("resource factory cannot be nil")
	}

	cfg := &clusterConfig{
		workers:      DefaultWorkers,
		pollInterval: DefaultPollInterval,
		resource: ResourceSettings{
			Headless: true,
			Args:     append([]string(nil), DefaultArgs...),
		},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	newID := cfg.newID
	if newID == nil {
		newID = uuid.NewString
	}

	collector, err := metrics.NewCollector(cfg.registerer)
	if err != nil {
		return nil, err
	}

	return &Cluster[R, T]{
		factory: factory,
		settings: Settings{
			Workers:      cfg.workers,
			PollInterval: cfg.pollInterval,
			Resource:     cfg.resource,
		},
		logger:  logger,
		newID:   newID,
		events:  &emitter{callbacks: cfg.callbacks, logger: logger},
		metrics: collector,
	}, nil
}

// Settings returns the cluster's resolved configuration.
func (c *Cluster[R, T]) Settings() Settings {
	s := c.settings
	s.Resource.Args = append([]string(nil), s.Resource.Args...)
	return s
}

// Launch creates every resource and worker, then starts all worker loops.
//
// Resources are created one at a time, in index order. If the factory fails
// for any index, the resources already created are closed and the factory
// error is returned together with any error from that rollback; the cluster
// is left unlaunched and Launch may be retried.
//
// The values of ctx are visible to task work; cancelling ctx stops the
// worker loops. Returns [ErrAlreadyLaunched] on a second call and
// [ErrClosed] after [Cluster.Close].
func (c *Cluster[R, T]) Launch(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateLaunching, stateRunning:
		c.mu.Unlock()
		return ErrAlreadyLaunched
	case stateClosed:
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = stateLaunching
	c.mu.Unlock()

	c.logger.Info("creating workers", "count", c.settings.Workers)

	workers, err := c.createWorkers(ctx)
	if err != nil {
		c.mu.Lock()
		if c.state == stateLaunching {
			c.state = stateNew
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.state == stateClosed {
		// Close raced with Launch; the workers were never visible to it
		c.mu.Unlock()
		return multierr.Append(ErrClosed, closeAll(ctx, workers))
	}
	c.workers = workers
	c.state = stateRunning
	c.mu.Unlock()

	c.logger.Info("launching workers")
	for _, w := range workers {
		w.Launch(ctx)
	}
	return nil
}

// createWorkers builds one resource and worker per index, rolling back on
// the first factory failure.
func (c *Cluster[R, T]) createWorkers(ctx context.Context) ([]*Worker[R, T], error) {
	workers := make([]*Worker[R, T], 0, c.settings.Workers)

	for i := 0; i < c.settings.Workers; i++ {
		resource, err := c.factory(ctx, i, c.settings.Resource)
		if err != nil {
			err = fmt.Errorf("create resource %d: %w", i, err)
			c.logger.Error("launch failed, rolling back", "index", i, "created", len(workers), "error", err.Error())
			return nil, multierr.Append(err, closeAll(context.WithoutCancel(ctx), workers))
		}

		workerID := i + 1
		workers = append(workers, newWorker[R, T](workerID, resource, c.settings.PollInterval, c.logger, c.metrics, c.events))
		c.logger.Debug("worker created", "worker", workerID)
	}

	return workers, nil
}

// Execute submits work and returns its future.
//
// The task is routed to the worker with the shortest queue at the time of
// the call. Execute never blocks on the work itself. If the task cannot be
// queued the returned future is already settled with [ErrNotLaunched],
// [ErrClosed] or [ErrNoWorkers].
func (c *Cluster[R, T]) Execute(work Work[R, T], opts ...TaskOption) *Future[T] {
	var cfg taskConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	id := c.newID()

	c.mu.Lock()
	st := c.state
	workers := c.workers
	c.mu.Unlock()

	switch st {
	case stateNew, stateLaunching:
		return rejectedFuture[T](id, ErrNotLaunched)
	case stateClosed:
		return rejectedFuture[T](id, ErrClosed)
	}

	task := newTask(id, work, cfg.description)

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	w := selectWorker(workers)
	if w == nil {
		return rejectedFuture[T](id, ErrNoWorkers)
	}
	if err := w.Enqueue(task); err != nil {
		task.abandon(err)
		return task.future
	}

	c.metrics.RecordSubmitted()
	c.logger.Debug("task queued", "task", task.Label(), "worker", w.ID())
	return task.future
}

// selectWorker returns the worker with the shortest queue, or nil if there
// are none. The scan is linear and only a strictly shorter queue replaces
// the current pick, so ties go to the lowest index.
func selectWorker[R Resource, T any](workers []*Worker[R, T]) *Worker[R, T] {
	var selected *Worker[R, T]
	selectedLen := 0

	for _, w := range workers {
		length := w.QueueLength()
		if selected == nil || length < selectedLen {
			selected = w
			selectedLen = length
		}
	}
	return selected
}

// Size returns the number of workers in the pool; zero before launch.
func (c *Cluster[R, T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workers)
}

// Workers returns a copy of the worker list in index order.
func (c *Cluster[R, T]) Workers() []*Worker[R, T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]*Worker[R, T], len(c.workers))
	copy(cp, c.workers)
	return cp
}

// QueueLengths returns each worker's queue length in index order.
func (c *Cluster[R, T]) QueueLengths() []int {
	workers := c.Workers()
	lengths := make([]int, len(workers))
	for i, w := range workers {
		lengths[i] = w.QueueLength()
	}
	return lengths
}

// Close stops every worker and releases every resource.
//
// Workers are closed concurrently and Close waits for all of them; one
// worker failing to close never stops the others, and every failure is
// included in the returned error. Tasks still queued are rejected with
// [ErrClosed]. ctx bounds how long each worker waits for its in-flight task
// before releasing its resource.
//
// Close is idempotent. The cluster cannot be launched again.
func (c *Cluster[R, T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.state = stateClosed
	workers := c.workers
	c.mu.Unlock()

	if prev != stateRunning {
		return nil
	}

	c.logger.Info("closing cluster", "workers", len(workers))
	if err := closeAll(ctx, workers); err != nil {
		c.logger.Error("cluster closed with errors", "error", err.Error())
		return err
	}
	c.logger.Info("cluster closed")
	return nil
}

// closeAll closes workers concurrently and combines every error.
func closeAll[R Resource, T any](ctx context.Context, workers []*Worker[R, T]) error {
	errs := make([]error, len(workers))

	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			errs[i] = w.Close(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return multierr.Combine(errs...)
}
