package common

import (
	"sync/atomic"
)

// Ring is a lock-free single-producer/single-consumer queue with a fixed,
// power-of-two capacity. Exactly one goroutine may call the producer methods
// (Push, Write) and exactly one other goroutine the consumer methods (Pop,
// Drain, Read, Discard). Producer methods never block and never allocate;
// when the ring is full the new data is dropped and counted.
type Ring[T any] struct {
	buffer []T
	mask   uint64

	head    atomic.Uint64 // next slot to read, owned by the consumer
	tail    atomic.Uint64 // next slot to write, owned by the producer
	dropped atomic.Uint64
}

// NewRing creates a ring holding at least capacity elements
func NewRing[T any](capacity int) *Ring[T] {
	size := NextPowerOfTwo(max(capacity, 2))
	return &Ring[T]{
		buffer: make([]T, size),
		mask:   uint64(size - 1),
	}
}

// Push appends one element. Returns false (and counts a drop) when full.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buffer)) {
		r.dropped.Add(1)
		return false
	}
	r.buffer[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Write appends as many elements of data as fit and returns the count
// written; the remainder is counted as dropped.
func (r *Ring[T]) Write(data []T) int {
	tail := r.tail.Load()
	free := uint64(len(r.buffer)) - (tail - r.head.Load())
	n := uint64(len(data))
	if n > free {
		r.dropped.Add(n - free)
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buffer[(tail+i)&r.mask] = data[i]
	}
	r.tail.Store(tail + n)
	return int(n)
}

// Pop removes the oldest element
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buffer[head&r.mask]
	r.buffer[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Drain appends every queued element to dst and returns the extended slice
func (r *Ring[T]) Drain(dst []T) []T {
	head := r.head.Load()
	tail := r.tail.Load()
	for ; head != tail; head++ {
		dst = append(dst, r.buffer[head&r.mask])
	}
	r.head.Store(head)
	return dst
}

// Read fills dst with the oldest elements and returns the count read
func (r *Ring[T]) Read(dst []T) int {
	head := r.head.Load()
	n := min(uint64(len(dst)), r.tail.Load()-head)
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buffer[(head+i)&r.mask]
	}
	r.head.Store(head + n)
	return int(n)
}

// Discard drops everything currently queued. Consumer side only.
func (r *Ring[T]) Discard() int {
	head := r.head.Load()
	tail := r.tail.Load()
	r.head.Store(tail)
	return int(tail - head)
}

// Len returns the number of queued elements
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the ring capacity
func (r *Ring[T]) Cap() int {
	return len(r.buffer)
}

// Dropped returns how many elements were rejected because the ring was full
func (r *Ring[T]) Dropped() uint64 {
	return r.dropped.Load()
}
