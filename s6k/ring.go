package s6k

// Ring is a fixed capacity FIFO. It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding at most capacity items. A capacity below one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{items: make([]T, capacity)}
}

// Len returns the number of queued items.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Full reports whether Push would fail.
func (r *Ring[T]) Full() bool { return r.size == len(r.items) }

// Push appends v. It returns false and drops v when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	if r.Full() {
		return false
	}
	r.items[(r.head+r.size)%len(r.items)] = v
	r.size++

	return true
}

// Pop removes the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}

	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size--

	return v, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}

	return r.items[r.head], true
}

// At returns the i-th oldest item. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("s6k: ring index out of range")
	}

	return r.items[(r.head+i)%len(r.items)]
}

// Reset drops every item.
func (r *Ring[T]) Reset() {
	for r.size > 0 {
		r.Pop()
	}
	r.head = 0
}
