// Package ringbuf provides a lock-free single-producer single-consumer ring
// of live ticks. The stream read loop pushes; one consumer goroutine applies
// ticks to the dashboard, so a slow evaluation never stalls the socket.
package ringbuf

import (
	"context"
	"sync/atomic"

	"trading-dashboard/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a lock-free SPSC ring buffer of ticks.
// Size is a power of two for bitwise modulo.
type Ring struct {
	buf  []model.Tick
	mask uint64

	// Separate cache lines to prevent false sharing between producer and consumer.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // written by consumer
	_pad2 [cacheLine]byte

	dropped atomic.Uint64
	wake    chan struct{}
}

// New creates a ring. capacity is rounded up to the next power of two, minimum 2.
func New(capacity int) *Ring {
	n := max(nextPow2(capacity), 2)
	return &Ring{
		buf:  make([]model.Tick, n),
		mask: uint64(n - 1),
		wake: make(chan struct{}, 1),
	}
}

// Push appends a tick. Returns false, dropping the tick, when the ring is full.
func (r *Ring) Push(t model.Tick) bool {
	head := r.head.Load()
	if head-r.tail.Load() >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}

	r.buf[head&r.mask] = t
	r.head.Store(head + 1)

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest tick. Returns false when empty.
func (r *Ring) Pop() (model.Tick, bool) {
	tail := r.tail.Load()
	if tail >= r.head.Load() {
		return model.Tick{}, false
	}

	t := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return t, true
}

// Drain is the consumer loop: it hands every tick to fn in push order and
// sleeps while the ring is empty. Returns when ctx is done.
func (r *Ring) Drain(ctx context.Context, fn func(model.Tick)) {
	for {
		for {
			t, ok := r.Pop()
			if !ok {
				break
			}
			fn(t)
		}
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}
	}
}

// Len returns the number of queued ticks.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Dropped returns how many pushes found the ring full.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
