package dispatch

import (
	"errors"

	"github.com/kestrelrun/dispatch/internal/jobfactory"
	"github.com/kestrelrun/dispatch/internal/queue"
)

// Stop is the sentinel a ProducerFunc returns to signal end-of-stream
// (spec §3, producer-mode source kind).
var Stop = errors.New("dispatch: stop")

// ProducerFunc yields one item per call, returning Stop once exhausted.
// Any other non-nil error is treated the same as Stop: the factory stops
// issuing new work, and Map/Each return without error (the producer itself
// is responsible for surfacing its own failures some other way, since the
// spec gives it no channel to report one).
type ProducerFunc[I any] func() (I, error)

// Source is the job source Map and Each draw from: an in-memory slice, a
// callable, or a blocking queue (spec §3's three source kinds).
type Source[I any] struct {
	factory *jobfactory.Factory[I]
}

// FromSlice builds a finite, array-mode Source over items.
func FromSlice[I any](items []I) Source[I] {
	return Source[I]{factory: jobfactory.FromSlice(items)}
}

// FromProducer builds an unbounded, producer-mode Source. next is called at
// most once after it first returns Stop.
func FromProducer[I any](next ProducerFunc[I]) Source[I] {
	wrapped := jobfactory.Producer[I](func() (I, bool) {
		item, err := next()
		if err != nil {
			var zero I
			return zero, false
		}
		return item, true
	})
	return Source[I]{factory: jobfactory.FromProducer(wrapped)}
}

// FromQueue builds an unbounded, queue-mode Source backed by q. Multiple
// Source values may share one Queue; each item is handed to exactly one
// consumer.
func FromQueue[I any](q *Queue[I]) Source[I] {
	return Source[I]{factory: jobfactory.FromQueue(q.inner)}
}

// Queue is a blocking multi-producer, multi-consumer item buffer suitable
// for use as a Source, and for feeding work into a running Map/Each call
// from other goroutines.
type Queue[I any] struct {
	inner *queue.Blocking[I]
}

// NewQueue creates a Queue with the given buffer capacity (rounded up to
// the next power of two; a non-positive value uses a generous default).
func NewQueue[I any](capacity int) *Queue[I] {
	return &Queue[I]{inner: queue.New[I](capacity)}
}

// Push enqueues an item. It returns an error if Close has already been
// called.
func (q *Queue[I]) Push(item I) error {
	if err := q.inner.Enqueue(item); err != nil {
		return err
	}
	return nil
}

// Close marks the queue closed: buffered items still drain, but further
// Push calls fail and Dequeue returns end-of-stream once drained.
func (q *Queue[I]) Close() {
	q.inner.Close()
}

// Len reports the approximate number of buffered, undelivered items.
func (q *Queue[I]) Len() int {
	return q.inner.Len()
}
