// Package queue provides the unbounded FIFO used to hand events to bus subscribers.
package queue

import "sync/atomic"

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFree is a lock-free, concurrent, unbounded FIFO queue
// (Michael-Scott algorithm). Enqueue never blocks.
type LockFree[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int32
}

// NewLockFree creates an empty queue.
func NewLockFree[T any]() *LockFree[T] {
	q := &LockFree[T]{}
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Enqueue adds an item to the tail of the queue.
func (q *LockFree[T]) Enqueue(item T) {
	n := &node[T]{value: item}

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if tail != q.tail.Load() {
			continue
		}

		if next != nil {
			// tail is falling behind
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
func (q *LockFree[T]) Dequeue() (item T, ok bool) {
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
			q.tail.CompareAndSwap(tail, next)

			continue
		}

		// read value before CAS, next becomes the new sentinel.
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)

			return value, true
		}
	}
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *LockFree[T]) IsEmpty() bool {
	return q.length.Load() == 0
}

// Length returns the number of items in the queue.
func (q *LockFree[T]) Length() int {
	return int(q.length.Load())
}
