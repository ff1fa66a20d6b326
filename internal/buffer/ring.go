// Package buffer implements the bounded FIFO that holds diff events while
// the sync state machine is waiting on or draining against a snapshot.
package buffer

import (
	"sync"

	"github.com/BullionBear/obsync/internal/model"
)

// DefaultCapacity is MAX_BUFFER_SIZE: the maximum number of buffered
// events before the oldest is dropped to make room for a new one.
const DefaultCapacity = 1000

// Ring is a bounded, head-drop-on-overflow FIFO of diff events. Zero value
// is not usable; use New. Grounded on the mutex-guarded slice shape of an
// in-process message queue, made bounded instead of blocking.
type Ring struct {
	mu       sync.Mutex
	queue    []model.DiffEvent
	capacity int
}

// New returns an empty Ring with the given capacity. A non-positive
// capacity is replaced by DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Push appends an event. When the buffer is already at capacity, the
// oldest event is dropped first — newer events are more valuable for
// catching up, and this bounds memory under producer bursts.
func (r *Ring) Push(e model.DiffEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) >= r.capacity {
		r.queue = r.queue[1:]
	}
	r.queue = append(r.queue, e)
}

// PopFront removes and returns the oldest event, if any.
func (r *Ring) PopFront() (model.DiffEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return model.DiffEvent{}, false
	}
	e := r.queue[0]
	r.queue = r.queue[1:]
	return e, true
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Clear empties the buffer.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
}
