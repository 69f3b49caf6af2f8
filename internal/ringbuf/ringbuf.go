// Package ringbuf provides a fixed-capacity circular buffer with
// overwrite-oldest semantics. Once full, every Push replaces the oldest
// element, so the buffer always holds the Cap() most recent pushes.
//
// Ring is not safe for concurrent use; callers serialize access.
package ringbuf

import "errors"

// ErrInvalidCapacity is returned by New when capacity is not positive.
var ErrInvalidCapacity = errors.New("ringbuf: capacity must be positive")

// Ring is a circular buffer of T values.
type Ring[T any] struct {
	buf  []T
	head int // next write slot
	tail int // oldest element
	size int

	// Number of pushes that replaced an element (for metrics)
	overwrites uint64
}

// New creates an empty ring buffer holding at most capacity elements.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Ring[T]{buf: make([]T, capacity)}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew[T any](capacity int) *Ring[T] {
	r, err := New[T](capacity)
	if err != nil {
		panic(err)
	}
	return r
}

// Push writes item at the head slot. When the buffer is already full the
// slot at the old tail is the one overwritten and the tail advances with it.
func (r *Ring[T]) Push(item T) {
	r.buf[r.head] = item
	r.head = (r.head + 1) % len(r.buf)

	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.tail = (r.tail + 1) % len(r.buf)
	r.overwrites++
}

// Items returns the held elements, oldest first. The slice is a copy.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.size)
	idx := r.tail
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[idx])
		idx = (idx + 1) % len(r.buf)
	}
	return out
}

// Last returns the newest element. ok is false when the buffer is empty.
func (r *Ring[T]) Last() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)], true
}

// IsFull reports whether Len() == Cap().
func (r *Ring[T]) IsFull() bool { return r.size == len(r.buf) }

// Len returns the current number of elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Overwrites returns how many pushes dropped an older element.
func (r *Ring[T]) Overwrites() uint64 { return r.overwrites }

// Clear discards the logical contents. Backing storage is not zeroed.
func (r *Ring[T]) Clear() {
	r.size = 0
	r.head = 0
	r.tail = 0
}
