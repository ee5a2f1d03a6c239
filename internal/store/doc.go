// Package store keeps recent task records and the latest worker states in
// memory and publishes every change to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [TaskRecord]: Storage representation of one submitted task
//   - [WorkerState]: One worker's sampled load
//   - [Event]: What subscribers receive for either kind of change
//
// Retention is bounded: once the store holds its capacity, inserting a new
// record evicts the oldest one. Subscribers receive updates via channels
// with non-blocking sends (slow subscribers will miss updates rather than
// block the cluster's event path).
package store
