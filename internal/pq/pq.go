// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package pq implements a priority queue keyed by int64 values. Values
// enqueued under a key that is already present are merged into the pending
// entry instead of replacing it.
//
package pq

import (
	"container/heap"

	"github.com/pkg/errors"
)

// ErrEmpty is returned by Peek and Dequeue when the queue holds no entries.
//
var ErrEmpty = errors.New("priority queue is empty")

// A MergeFn combines a value enqueued at an existing key (v2) with the value
// already pending at that key (v1). Implementations must keep v1's elements
// ahead of v2's.
//
type MergeFn[T any] func(v1, v2 T) T

type item[T any] struct {
	key int64
	val T
}

type itemHeap[T any] []*item[T]

func (h itemHeap[T]) Len() int           { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool { return h[i].key < h[j].key }
func (h itemHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x interface{}) {
	*h = append(*h, x.(*item[T]))
}

func (h *itemHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a min-priority queue. Keys are unique: at most one entry exists
// per key at any time.
//
type Queue[T any] struct {
	h     itemHeap[T]
	keys  map[int64]*item[T]
	merge MergeFn[T]
}

// New returns an empty queue that uses merge to resolve key collisions.
//
func New[T any](merge MergeFn[T]) *Queue[T] {
	if merge == nil {
		panic("nil merge function")
	}
	return &Queue[T]{
		keys:  make(map[int64]*item[T]),
		merge: merge,
	}
}

// Enqueue adds v at the given key. If an entry already exists at key, v is
// merged into it.
//
func (q *Queue[T]) Enqueue(key int64, v T) {
	if it, ok := q.keys[key]; ok {
		it.val = q.merge(it.val, v)
		return
	}
	it := &item[T]{key: key, val: v}
	q.keys[key] = it
	heap.Push(&q.h, it)
}

// Peek returns the entry with the lowest key without removing it.
//
func (q *Queue[T]) Peek() (int64, T, error) {
	if len(q.h) == 0 {
		var zero T
		return 0, zero, ErrEmpty
	}
	it := q.h[0]
	return it.key, it.val, nil
}

// Dequeue removes and returns the entry with the lowest key.
//
func (q *Queue[T]) Dequeue() (int64, T, error) {
	if len(q.h) == 0 {
		var zero T
		return 0, zero, ErrEmpty
	}
	it := heap.Pop(&q.h).(*item[T])
	delete(q.keys, it.key)
	return it.key, it.val, nil
}

// IsEmpty reports whether the queue has no pending entries.
//
func (q *Queue[T]) IsEmpty() bool { return len(q.h) == 0 }

// Len returns the number of distinct keys in the queue.
//
func (q *Queue[T]) Len() int { return len(q.h) }
