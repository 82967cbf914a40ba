package monitor

import "sync"

const (
	// DefaultHistoryCapacity bounds the in-memory audit trail.
	DefaultHistoryCapacity = 10000

	// defaultRecentCount is returned by Recent when the caller passes a
	// non-positive count.
	defaultRecentCount = 25
)

// EventHistoryBuffer is a fixed-capacity ring of outcome events. Appending
// past capacity evicts the oldest entry. It carries its own lock because
// the push callback and the poll task append concurrently.
type EventHistoryBuffer struct {
	mu       sync.Mutex
	entries  []Event
	start    int
	size     int
	capacity int
}

// NewEventHistoryBuffer creates a buffer holding at most capacity events.
// A non-positive capacity falls back to DefaultHistoryCapacity.
func NewEventHistoryBuffer(capacity int) *EventHistoryBuffer {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &EventHistoryBuffer{
		entries:  make([]Event, capacity),
		capacity: capacity,
	}
}

// Append records an event, evicting the oldest entry once at capacity.
func (b *EventHistoryBuffer) Append(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.capacity {
		b.entries[(b.start+b.size)%b.capacity] = event
		b.size++
		return
	}
	b.entries[b.start] = event
	b.start = (b.start + 1) % b.capacity
}

// Len returns the number of stored events.
func (b *EventHistoryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Recent returns the last min(n, size) events ordered most-recent-first.
// A non-positive n defaults to 25.
func (b *EventHistoryBuffer) Recent(n int) []Event {
	if n <= 0 {
		n = defaultRecentCount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.size {
		n = b.size
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		// Walk backward from the newest entry.
		idx := (b.start + b.size - 1 - i + b.capacity) % b.capacity
		out[i] = b.entries[idx]
	}
	return out
}
