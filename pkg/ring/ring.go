// Package ring provides a small fixed-capacity ring that keeps only the most
// recent values appended to it, evicting the oldest entry when full. It is used
// for bounded diagnostic histories (probe lines, last-attempt records) where an
// unbounded slice would grow for the lifetime of the process.
package ring

import "sync"

// Ring is a fixed-capacity overwrite-oldest ring. The zero value is not usable;
// construct with [New]. Ring is safe for concurrent use.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	next  int
	count int
}

// New creates a Ring holding at most capacity entries. capacity must be > 0;
// a non-positive value is clamped to 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append adds v to the ring, evicting the oldest entry when the ring is full.
func (r *Ring[T]) Append(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of entries currently held.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Last returns the most recently appended entry, or the zero value and false
// when the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		var zero T
		return zero, false
	}
	idx := (r.next - 1 + len(r.buf)) % len(r.buf)
	return r.buf[idx], true
}

// Snapshot returns a copy of the current contents, oldest first. The returned
// slice is owned by the caller.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, r.count)
	start := r.next - r.count
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i+len(r.buf))%len(r.buf)])
	}
	return out
}

// Reset discards all entries.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.count = 0
}
