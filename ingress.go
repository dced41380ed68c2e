// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"sync"
)

// chunkSize is the number of items per node in a chunkedQueue.
const chunkSize = 64

// chunkedQueue is a chunked linked-list FIFO.
//
// Thread Safety: NOT thread-safe. See ingress for the locked variant.
type chunkedQueue[T any] struct {
	head   *chunk[T]
	tail   *chunk[T]
	spare  *chunk[T]
	length int
}

// chunk is a fixed-size node, with readPos/pos cursors for O(1) push/pop.
type chunk[T any] struct {
	items   [chunkSize]T
	next    *chunk[T]
	readPos int
	pos     int
}

func (q *chunkedQueue[T]) newChunk() *chunk[T] {
	if c := q.spare; c != nil {
		q.spare = nil
		return c
	}
	return new(chunk[T])
}

// release keeps one exhausted chunk for reuse, clearing it so it does not
// retain payloads.
func (q *chunkedQueue[T]) release(c *chunk[T]) {
	clear(c.items[:c.pos])
	c.pos = 0
	c.readPos = 0
	c.next = nil
	q.spare = c
}

// Push appends v.
func (q *chunkedQueue[T]) Push(v T) {
	if q.tail == nil {
		q.tail = q.newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.items) {
		n := q.newChunk()
		q.tail.next = n
		q.tail = n
	}
	q.tail.items[q.tail.pos] = v
	q.tail.pos++
	q.length++
}

// Pop removes and returns the oldest item. Returns false if empty.
func (q *chunkedQueue[T]) Pop() (T, bool) {
	var zero T
	for q.head != nil {
		if q.head.readPos < q.head.pos {
			v := q.head.items[q.head.readPos]
			q.head.items[q.head.readPos] = zero
			q.head.readPos++
			q.length--
			return v, true
		}
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
			return zero, false
		}
		old := q.head
		q.head = old.next
		q.release(old)
	}
	return zero, false
}

// Len returns the number of queued items.
func (q *chunkedQueue[T]) Len() int { return q.length }

// Drain pops everything, in order.
func (q *chunkedQueue[T]) Drain() []T {
	if q.length == 0 {
		return nil
	}
	out := make([]T, 0, q.length)
	for {
		v, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// ingress is a mutex-guarded chunkedQueue, for values produced on other
// goroutines and consumed by the loop.
type ingress[T any] struct {
	q  chunkedQueue[T]
	mu sync.Mutex
}

// Push appends v, returning the queue length after the push.
func (in *ingress[T]) Push(v T) int {
	in.mu.Lock()
	in.q.Push(v)
	n := in.q.length
	in.mu.Unlock()
	return n
}

// Drain removes and returns everything queued.
func (in *ingress[T]) Drain() []T {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.q.Drain()
}

// Len returns the number of queued items.
func (in *ingress[T]) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.q.length
}
