// Package queue provides the shared rendezvous between the supervisor and
// its workers: a FIFO job queue, a FIFO result queue, one done flag per
// worker slot and a publish-once universal configuration map.
//
// Every operation is safe for concurrent use without external locking.
// Pops never block; an empty queue is reported with ErrEmpty so callers can
// distinguish "no work" and adjust their poll interval.
package queue

import (
	"errors"
	"sync"
)

// ErrEmpty is returned by PopNowait when no item is available.
var ErrEmpty = errors.New("queue: empty")

// Queue is an unbounded FIFO queue serialized by a mutex.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends item to the tail of the queue.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// PopNowait removes and returns the head of the queue.
// It returns ErrEmpty immediately if the queue has no items.
func (q *Queue[T]) PopNowait() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head == len(q.items) {
		return zero, ErrEmpty
	}
	item := q.items[q.head]
	q.items[q.head] = zero // release the reference
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, nil
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Empty reports whether the queue currently holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}
