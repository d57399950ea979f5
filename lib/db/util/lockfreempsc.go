// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue implementation.
//
// Features and Guarantees:
//
//   - Lock-Free: producers only use atomic operations, even under high contention
//   - Unbounded Size: the queue can grow to any size as needed, limited only by available memory
//   - Non-blocking consumption: TryPop returns immediately when the queue is empty,
//     no goroutine is started by the queue
//   - Single Consumer: TryPop must not be called concurrently with itself
//   - No Strict FIFO Guarantee across producers: under concurrent Push() operations, the
//     ordering is determined by which producer links its node first. Items of one producer
//     are popped in the order they were pushed.
package util

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
// It is a linked list with a sentinel head: producers append at the tail with CAS,
// the consumer advances the head.
type LockFreeMPSC[T interface{}] struct {
	head   atomic.Pointer[node[T]] // only touched by the consumer
	tail   atomic.Pointer[node[T]]
	size   atomic.Int64
	closed atomic.Bool
}

// NewLockFreeMPSC creates a new lock-free multi-producer single-consumer queue
func NewLockFreeMPSC[T interface{}]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed or value is nil.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			// the tail has no successor yet, try to link our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already advanced the tail, which is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)
				return true
			}
		} else {
			// help a producer that linked its node but did not yet advance the tail
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 exponential backoff under contention:
		  - few retries: spin with Gosched to avoid parking the goroutine
		  - more retries: back off longer so producers do not retry in lockstep
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// TryPop removes and returns the oldest linked item. The boolean is false when the
// queue is currently empty.
//
// Thread-safety: Only a single goroutine may consume from the queue at a time.
func (q *LockFreeMPSC[T]) TryPop() (*T, bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil, false
	}

	value := next.value
	q.head.Store(next)

	// the new head acts as sentinel, drop its reference to help the gc
	next.value = nil
	q.size.Add(-1)
	return value, true
}

// Close closes the queue, preventing further writes.
// Items already in the queue can still be popped.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items in the queue. The value is exact when no
// producer or consumer is active and approximate otherwise.
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.size.Load())
}
