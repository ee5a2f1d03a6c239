// Package poller samples the load of a running cluster at a fixed
// interval.
//
// The main components are:
//
//   - [Scheduler]: Runs the sampling loop and emits snapshots
//   - [Snapshot]: Every worker's load at one instant
//   - [WorkerLoad]: One worker's queue length and run state
//
// A snapshot is only emitted when it differs from the previous one, so an
// idle cluster produces no traffic. Consumers read [Scheduler.Results] until
// it is closed.
package poller
