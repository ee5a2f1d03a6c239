package store

import (
	"sync"
)

// DefaultCapacity is the number of records a [MemoryStore] keeps when
// created with a non-positive capacity.
const DefaultCapacity = 500

// subscriberBuffer is the channel buffer given to each subscriber.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Records are kept in insertion order. When a new ID would exceed the
// capacity, the oldest record is evicted.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the entire system.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	records  map[string]*TaskRecord
	order    []string
	workers  []WorkerState

	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an in-memory [Store] that retains at most
// capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity:    capacity,
		records:     make(map[string]*TaskRecord),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Upsert applies fn to the record for id and notifies all subscribers.
func (m *MemoryStore) Upsert(id string, fn func(rec *TaskRecord)) TaskRecord {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		rec = &TaskRecord{ID: id}
		m.records[id] = rec
		m.order = append(m.order, id)
		m.evictLocked()
	}
	fn(rec)
	rec.ID = id
	snapshot := *rec
	m.mu.Unlock()

	published := snapshot
	m.notifySubscribers(Event{Type: EventTask, Task: &published})
	return snapshot
}

// evictLocked drops the oldest records until the store is within capacity.
func (m *MemoryStore) evictLocked() {
	for len(m.order) > m.capacity {
		oldest := m.order[0]
		m.order[0] = ""
		m.order = m.order[1:]
		delete(m.records, oldest)
	}
}

// Get returns a copy of the record for id.
func (m *MemoryStore) Get(id string) (TaskRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return TaskRecord{}, false
	}
	return *rec, true
}

// GetAll returns a snapshot of all retained records, oldest first.
func (m *MemoryStore) GetAll() []TaskRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]TaskRecord, 0, len(m.order))
	for _, id := range m.order {
		results = append(results, *m.records[id])
	}
	return results
}

// SetWorkers replaces the worker states and notifies all subscribers.
func (m *MemoryStore) SetWorkers(workers []WorkerState) {
	m.mu.Lock()
	m.workers = append([]WorkerState(nil), workers...)
	m.mu.Unlock()

	m.notifySubscribers(Event{Type: EventWorkers, Workers: append([]WorkerState(nil), workers...)})
}

// Workers returns a copy of the latest worker states.
func (m *MemoryStore) Workers() []WorkerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]WorkerState(nil), m.workers...)
}

// Len returns the number of retained records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the event to all active subscribers without
// blocking; a full subscriber misses the update.
func (m *MemoryStore) notifySubscribers(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the message
		}
	}
}
