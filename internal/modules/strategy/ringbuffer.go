package strategy

// RingBuffer is a bounded FIFO window. The oldest value is dropped when full.
// Not safe for concurrent use; each buffer belongs to one strategy instance.
type RingBuffer[T any] struct {
	items []T
	start int
	size  int
}

// NewRingBuffer creates a buffer holding at most capacity values
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when full
func (r *RingBuffer[T]) Push(v T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
}

// Len returns the number of stored values
func (r *RingBuffer[T]) Len() int {
	return r.size
}

// Cap returns the maximum number of stored values
func (r *RingBuffer[T]) Cap() int {
	return len(r.items)
}

// Values returns the stored values, oldest first
func (r *RingBuffer[T]) Values() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
