// Package jobfactory implements the JobFactory described in spec §3-4.1: a
// strictly-increasing, thread-safe stream of (item, index) pairs drawn from
// an array, a blocking queue, or a producer callable, with an optional
// token-bucket throttle.
package jobfactory

import (
	"context"

	"github.com/kestrelrun/dispatch/internal/queue"
)

// Unbounded is the Size() sentinel for producer-mode and queue-mode
// factories, which have no a priori length.
const Unbounded = -1

// Pair is one (item, index) job handed out by a Factory.
type Pair[I any] struct {
	Item  I
	Index int
}

// Producer returns the next item, or ok=false to signal end-of-stream
// (spec's Stop sentinel).
type Producer[I any] func() (item I, ok bool)

// mode distinguishes the three source kinds spec §3 defines.
type mode int

const (
	modeArray mode = iota
	modeProducer
	modeQueue
)

// Factory is the thread-safe job source. Exactly one consumer ever sees a
// given index: in producer-mode the user's Producer is invoked inside the
// same critical section that bumps the index; in array-mode only the index
// bump is guarded, and the array read happens afterward, since array reads
// don't race (spec §3 invariant).
type Factory[I any] struct {
	mode mode

	array []I

	producer Producer[I]

	queue *queue.Blocking[I]

	mu       chan struct{} // binary semaphore; see lock/unlock below
	index    int
	stopped  bool
	throttle *throttle
}

func newFactory[I any](m mode) *Factory[I] {
	return &Factory[I]{
		mode:  m,
		index: -1,
		mu:    make(chan struct{}, 1),
	}
}

// FromSlice builds an array-mode Factory over items. Each Pair carries the
// item itself, so process and distributed workers receive the item in every
// job frame rather than looking it up by index.
func FromSlice[I any](items []I) *Factory[I] {
	f := newFactory[I](modeArray)
	f.array = items
	return f
}

// FromProducer builds a producer-mode Factory. next is called at most once
// after it first signals end-of-stream.
func FromProducer[I any](next Producer[I]) *Factory[I] {
	f := newFactory[I](modeProducer)
	f.producer = next
	return f
}

// FromQueue builds a queue-mode Factory backed by a blocking MPMC ring
// buffer (spec source kind (b)). Dequeue errors (including the queue being
// closed) are treated as end-of-stream.
func FromQueue[I any](q *queue.Blocking[I]) *Factory[I] {
	f := newFactory[I](modeQueue)
	f.queue = q
	return f
}

// WithRateLimit activates the tick-quantized token-bucket throttle spec
// §4.1 specifies: at most ceil(maxRate*100ms/1s) admissions per 100ms tick,
// shared across every caller of Next.
func (f *Factory[I]) WithRateLimit(maxRate float64) *Factory[I] {
	if maxRate > 0 {
		f.throttle = newThrottle(maxRate)
	}
	return f
}

func (f *Factory[I]) lock() {
	f.mu <- struct{}{}
}

func (f *Factory[I]) unlock() {
	<-f.mu
}

// Next returns the next (item, index) pair, or ok=false once the factory is
// exhausted. It blocks on the throttle (if any) before taking the critical
// section, and on queue-mode it blocks inside the critical section is
// avoided by dequeuing before acquiring the index lock, matching the
// array/producer critical-section discipline spec §3 requires while still
// letting queue-mode block without holding the index mutex against other
// goroutines' housekeeping.
func (f *Factory[I]) Next(ctx context.Context) (Pair[I], bool) {
	if f.throttle != nil && !f.throttle.admit(ctx) {
		return Pair[I]{}, false
	}

	var pair Pair[I]
	var ok bool
	switch f.mode {
	case modeProducer:
		pair, ok = f.nextProducer()
	case modeQueue:
		pair, ok = f.nextQueue(ctx)
	default:
		pair, ok = f.nextArray()
	}

	if !ok && f.throttle != nil {
		f.throttle.refund()
	}
	return pair, ok
}

func (f *Factory[I]) nextArray() (Pair[I], bool) {
	f.lock()
	if f.stopped {
		f.unlock()
		return Pair[I]{}, false
	}

	next := f.index + 1
	if next >= len(f.array) {
		f.stopped = true
		f.unlock()
		return Pair[I]{}, false
	}
	f.index = next
	f.unlock()
	return Pair[I]{Item: f.array[next], Index: next}, true
}

func (f *Factory[I]) nextProducer() (Pair[I], bool) {
	f.lock()
	defer f.unlock()

	if f.stopped {
		return Pair[I]{}, false
	}

	item, ok := f.producer()
	if !ok {
		f.stopped = true
		return Pair[I]{}, false
	}

	f.index++
	return Pair[I]{Item: item, Index: f.index}, true
}

// nextQueue dequeues outside the index lock (the queue has its own internal
// synchronization) and then takes the lock only to assign a dense index, so
// a slow producer blocked in Dequeue never holds up other consumers' index
// bookkeeping. An item that comes back from a successful Dequeue is always
// delivered and indexed, even if another consumer has meanwhile observed the
// queue closing and flipped f.stopped — that flag only short-circuits
// consumers who haven't dequeued anything yet.
func (f *Factory[I]) nextQueue(ctx context.Context) (Pair[I], bool) {
	f.lock()
	stopped := f.stopped
	f.unlock()
	if stopped {
		return Pair[I]{}, false
	}

	item, err := f.queue.Dequeue(ctx)
	if err != nil {
		f.lock()
		f.stopped = true
		f.unlock()
		return Pair[I]{}, false
	}

	f.lock()
	defer f.unlock()
	f.index++
	return Pair[I]{Item: item, Index: f.index}, true
}

// Size reports the factory's length, or Unbounded for producer- and
// queue-mode factories.
func (f *Factory[I]) Size() int {
	if f.mode == modeArray {
		return len(f.array)
	}
	return Unbounded
}

// Array exposes the backing slice for array-mode factories. No executor in
// this module calls it: the process and distributed executors ship each
// job's item in its own frame.
func (f *Factory[I]) Array() ([]I, bool) {
	if f.mode != modeArray {
		return nil, false
	}
	return f.array, true
}
