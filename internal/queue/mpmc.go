// Package queue implements the blocking, multi-producer multi-consumer ring
// buffer that backs a queue-like JobFactory source (spec §3, source kind (b)).
package queue

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Dequeue once the queue has been closed and
	// drained.
	ErrClosed = errors.New("queue: closed")
)

const (
	cacheLinePadding       = 128
	defaultInitialCapacity = 1024
	maxSpinAttempts        = 10
)

type slot[T any] struct {
	sequence uint64
	value    T
	_        [cacheLinePadding - 16]byte
}

// Blocking is a lock-free MPMC ring buffer with blocking Dequeue, the
// queue-like source spec §3 describes: items are pushed by any number of
// producers, popped by any number of consumers, and Waiters reports how
// many consumers are currently parked waiting for an item.
//
// Adapted from the teacher's pool/queue.go mpmcQueue; generalized with an
// explicit waiters count and a blocking, context-aware Dequeue.
type Blocking[T any] struct {
	ring []slot[T]
	mask uint64

	_    [cacheLinePadding]byte
	head uint64
	_    [cacheLinePadding - 8]byte
	tail uint64
	_    [cacheLinePadding - 8]byte

	closed  atomic.Bool
	waiters atomic.Int32

	notifyC chan struct{}
	closeC  chan struct{}
}

// New creates a Blocking queue with the given capacity, rounded up to the
// next power of two. A non-positive capacity uses a generous default.
func New[T any](capacity int) *Blocking[T] {
	if capacity <= 0 {
		capacity = defaultInitialCapacity
	}
	capacity = nextPowerOfTwo(capacity)

	ring := make([]slot[T], capacity)
	for i := range ring {
		ring[i].sequence = uint64(i)
	}

	return &Blocking[T]{
		ring:    ring,
		mask:    uint64(capacity - 1),
		notifyC: make(chan struct{}, 1),
		closeC:  make(chan struct{}),
	}
}

// Enqueue adds an item to the queue. The ring has a fixed capacity and does
// not grow: when it is full, Enqueue spins (yielding the processor) until a
// consumer frees a slot. It returns ErrClosed if the queue was already
// closed when it was called.
func (q *Blocking[T]) Enqueue(value T) error {
	if q.closed.Load() {
		return ErrClosed
	}

	spin := 0
	for {
		_, tail, s, diff := q.load(false)
		if diff == 0 {
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				s.value = value
				atomic.StoreUint64(&s.sequence, tail+1)
				select {
				case q.notifyC <- struct{}{}:
				default:
				}
				return nil
			}
			continue
		}

		spin++
		if spin > maxSpinAttempts {
			runtime.Gosched()
			spin = 0
		}
	}
}

// Dequeue blocks until an item is available, the queue is closed and
// drained, or ctx is cancelled. While blocked, the calling goroutine counts
// toward Waiters.
func (q *Blocking[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	spin := 0
	parked := false

	defer func() {
		if parked {
			q.waiters.Add(-1)
		}
	}()

	for {
		if q.isClosed() {
			return zero, ErrClosed
		}

		head, _, s, diff := q.load(true)
		if diff == 0 {
			if val, ok := q.dequeue(head, s); ok {
				return val, nil
			}
			continue
		}

		spin++
		if spin < maxSpinAttempts {
			runtime.Gosched()
			continue
		}

		if !parked {
			parked = true
			q.waiters.Add(1)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.closeC:
			// Recheck from the top: ErrClosed only once the buffer is drained.
			spin = 0
		case <-q.notifyC:
			spin = 0
		}
	}
}

func (q *Blocking[T]) dequeue(head uint64, s *slot[T]) (T, bool) {
	var zero T
	if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
		v := s.value
		s.value = zero
		atomic.StoreUint64(&s.sequence, head+q.mask+1)
		return v, true
	}
	return zero, false
}

func (q *Blocking[T]) isClosed() bool {
	if !q.closed.Load() {
		return false
	}
	return atomic.LoadUint64(&q.head) >= atomic.LoadUint64(&q.tail)
}

func (q *Blocking[T]) load(isHead bool) (head, tail uint64, s *slot[T], diff int64) {
	head = atomic.LoadUint64(&q.head)
	tail = atomic.LoadUint64(&q.tail)

	pos := tail
	if isHead {
		pos = head
	}

	s = &q.ring[pos&q.mask]
	seq := atomic.LoadUint64(&s.sequence)

	if isHead {
		diff = int64(seq) - int64(head+1)
	} else {
		diff = int64(seq) - int64(tail)
	}
	return
}

// Waiters reports how many consumers are currently blocked in Dequeue.
func (q *Blocking[T]) Waiters() int {
	return int(q.waiters.Load())
}

// Len returns the approximate number of buffered items.
func (q *Blocking[T]) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if tail > head {
		return int(tail - head)
	}
	return 0
}

// Close marks the queue closed; blocked and future Dequeue calls observe
// ErrClosed once the buffered items are drained.
func (q *Blocking[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.closeC)
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
