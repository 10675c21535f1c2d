// Package queue provides the lock-free handoff queue used between seamctl goroutines.
//
// Producers (the LWM receive task, fieldbus transports, the process collaborator) enqueue from any
// goroutine; the cyclic task is the single consumer and drains the queue once per tick without
// blocking.
package queue

import (
	"sync/atomic"
)

// node represents a node in the lock free queue.
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is a lock-free, unbounded FIFO (Michael-Scott queue).
//
// Enqueue and Dequeue are safe for concurrent use. An empty queue reports absence through the
// boolean result of Dequeue and Peek instead of a nil value.
type Queue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int32
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Enqueue adds an item to the tail of the queue.
func (q *Queue[T]) Enqueue(item T) {
	n := &node[T]{value: item}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		// Are tail and next consistent?
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// tail was not pointing to the last node, try to swing it forward.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Add(1)

			return
		}
	}
}

// Dequeue removes and returns the item at the head of the queue.
// ok is false if the queue is empty.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()

		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				return item, false
			}
			// tail is falling behind, try to advance it.
			q.tail.CompareAndSwap(tail, next)

			continue
		}

		// read value before CAS, otherwise another dequeue might recycle the next node.
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)

			return value, true
		}
	}
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (item T, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()

		if head != q.head.Load() {
			continue
		}
		if head != tail {
			return next.value, true
		}
		if next == nil {
			return item, false
		}
		q.tail.CompareAndSwap(tail, next)
	}
}

// Drain dequeues every item currently in the queue and passes it to fn, in FIFO order.
// Items enqueued while draining may or may not be included. It returns the number of items drained.
func (q *Queue[T]) Drain(fn func(T)) int {
	count := 0
	for {
		item, ok := q.Dequeue()
		if !ok {
			return count
		}
		fn(item)
		count++
	}
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *Queue[T]) IsEmpty() bool {
	return q.length.Load() == 0
}

// Length returns the number of items in the queue.
func (q *Queue[T]) Length() int {
	return int(q.length.Load())
}
