// Package outbox buffers operations attempted while disconnected for
// bulk replay, in insertion order, once connectivity returns.
package outbox

import "sync"

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 50

// Entry is one deferred operation: the logical frame name and its
// payload.
type Entry struct {
	Frame   string
	Payload any
}

// Queue is a bounded FIFO. Beyond capacity the oldest entry is
// dropped; entries are never retried individually, only drained in
// bulk.
type Queue struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// New creates a queue with the given capacity; non-positive values use
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{cap: capacity}
}

// Enqueue appends an entry, reporting whether an older entry was
// dropped to stay within capacity.
func (q *Queue) Enqueue(e Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	if len(q.entries) > q.cap {
		q.entries = q.entries[1:]
		return true
	}
	return false
}

// Drain removes and returns every entry in insertion order.
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

// Clear discards all entries.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
