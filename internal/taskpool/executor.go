// Package taskpool implements the in-task executor: N goroutines sharing
// one JobFactory, generalized from the teacher's WorkerPool.Process
// (which shares a pre-sliced channel instead of a JobFactory) to spec
// §4.6's design — a shared `exception` slot, last-writer-wins, and a hard
// stop on the first non-nil error.
package taskpool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelrun/dispatch/internal/jobfactory"
	"github.com/kestrelrun/dispatch/internal/procfacts"
)

// Hooks mirrors the instrumentation options spec §4.11 lists, scoped to
// what the task-pool substrate honours.
type Hooks[I, O any] struct {
	Start  func(item I, index int)
	Finish func(item I, index int, result O, err error)
}

// Func is the user work function, already resolved to take (item, index)
// regardless of whether the caller asked for WithIndex — the dispatch
// package adapts a plain func(I) (O, error) into this shape once, rather
// than branching on WithIndex on every call.
type Func[I, O any] func(ctx context.Context, item I, index int) (O, error)

// Run drives factory with workerCount goroutines, each pulling jobs until
// the factory is exhausted or a worker reports a non-nil error. It returns
// results indexed exactly as the factory's indices, sized to factory.Size()
// when known or grown lazily for unbounded factories.
//
// This substrate does not support a configurable interrupt signal (spec
// §4.6): OS processes, not goroutines, are what an interrupt can usefully
// kill, so WithInterruptSignal is rejected by the caller before Run is
// ever invoked.
//
// When pinWorkers is set, each goroutine locks itself to its own OS thread
// and, where the platform supports it, pins that thread to a distinct CPU
// for the duration of the run (spec §4.6's pinned-worker mode).
func Run[I, O any](ctx context.Context, factory *jobfactory.Factory[I], workerCount int, fn Func[I, O], hooks Hooks[I, O], pinWorkers bool) ([]O, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var exception error
	results := newResults[O](factory.Size())

	for i := 0; i < workerCount; i++ {
		workerID := i
		g.Go(func() error {
			if pinWorkers {
				defer procfacts.PinWorker(workerID)()
			}
			for {
				mu.Lock()
				stop := exception != nil
				mu.Unlock()
				if stop {
					return nil
				}

				pair, ok := factory.Next(ctx)
				if !ok {
					return nil
				}

				if hooks.Start != nil {
					mu.Lock()
					hooks.Start(pair.Item, pair.Index)
					mu.Unlock()
				}

				result, err := fn(ctx, pair.Item, pair.Index)
				if err != nil {
					var zero O
					result = zero
				}

				if hooks.Finish != nil {
					mu.Lock()
					hooks.Finish(pair.Item, pair.Index, result, err)
					mu.Unlock()
				}

				if err != nil {
					mu.Lock()
					exception = err // last writer wins
					mu.Unlock()
					return nil
				}

				results.set(pair.Index, result)
			}
		})
	}

	_ = g.Wait() // worker goroutines never return an error themselves

	if exception != nil {
		return nil, exception
	}
	return results.slice(), nil
}

// results is a sparse, index-addressed result vector (spec §3) that grows
// to fit unbounded (producer-mode, queue-mode) factories without requiring
// every consumer to agree on a final size up front.
type results[O any] struct {
	mu   sync.Mutex
	vals []O
	set_ []bool
}

func newResults[O any](size int) *results[O] {
	if size < 0 {
		size = 0
	}
	return &results[O]{
		vals: make([]O, size),
		set_: make([]bool, size),
	}
}

func (r *results[O]) set(index int, v O) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index >= len(r.vals) {
		grown := make([]O, index+1)
		copy(grown, r.vals)
		r.vals = grown

		grownSet := make([]bool, index+1)
		copy(grownSet, r.set_)
		r.set_ = grownSet
	}
	r.vals[index] = v
	r.set_[index] = true
}

func (r *results[O]) slice() []O {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]O, len(r.vals))
	copy(out, r.vals)
	return out
}
