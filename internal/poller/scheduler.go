package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minInterval floors the sampling interval to prevent CPU thrashing.
const minInterval = 50 * time.Millisecond

// WorkerLoad is one worker's state at sampling time.
type WorkerLoad struct {
	// ID is the worker's 1-based identifier.
	ID int

	// QueueLength is the number of tasks waiting on the worker.
	QueueLength int

	// Running reports whether the worker loop is active.
	Running bool
}

// Snapshot holds every worker's load at one instant.
type Snapshot struct {
	// Workers is ordered by worker index.
	Workers []WorkerLoad

	// SampledAt is when the source was read.
	SampledAt time.Time
}

// Pending returns the total number of queued tasks across all workers.
func (s Snapshot) Pending() int {
	total := 0
	for _, w := range s.Workers {
		total += w.QueueLength
	}
	return total
}

// Source reads the current load of every worker. It is called from the
// scheduler goroutine and must be safe for concurrent use with the cluster.
type Source func() []WorkerLoad

// Scheduler periodically samples a [Source].
//
// The scheduler samples immediately on start, then once per interval, and
// emits a [Snapshot] whenever the loads differ from the last one emitted.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	source   Source
	interval time.Duration
	results  chan Snapshot
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	last []WorkerLoad
}

// NewScheduler creates a new sampling [Scheduler].
//
// Parameters:
//   - source: Reads the current worker loads
//   - interval: Time between samples, floored at 50ms
//   - logger: Logger for scheduler events (panic recovery, etc.)
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Snapshots are available via [Scheduler.Results].
func NewScheduler(source Source, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < minInterval {
		interval = minInterval
	}
	return &Scheduler{
		source:   source,
		interval: interval,
		results:  make(chan Snapshot, 1),
		logger:   logger,
	}
}

// Results returns a receive-only channel that emits [Snapshot] values.
//
// The channel is closed when the scheduler stops.
func (s *Scheduler) Results() <-chan Snapshot {
	return s.results
}

// Interval returns the effective sampling interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins the sampling loop in a background goroutine.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	sampleCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.sample(sampleCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-sampleCtx.Done():
				return
			case <-ticker.C:
				s.sample(sampleCtx)
			}
		}
	}()
}

// Stop halts the scheduler and waits for the loop to exit.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op. The results channel is closed once Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// sample reads the source and emits a snapshot if anything changed.
func (s *Scheduler) sample(ctx context.Context) {
	loads, err := s.safeRead()
	if err != nil {
		return
	}
	if s.last != nil && slices.Equal(loads, s.last) {
		return
	}
	s.last = loads

	snap := Snapshot{Workers: loads, SampledAt: time.Now()}
	select {
	case s.results <- snap:
	case <-ctx.Done():
	}
}

// safeRead calls the source with panic recovery.
// If the source panics, it logs the full stack trace with a correlation ID
// and skips this sample.
func (s *Scheduler) safeRead() (loads []WorkerLoad, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			s.logger.Error("load source panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			err = fmt.Errorf("load source panic (correlation_id: %s)", correlationID)
		}
	}()
	loads = s.source()
	if loads == nil {
		loads = []WorkerLoad{}
	}
	return loads, nil
}
