// Package procpool implements the process-pool executor: N worker
// processes, each re-exec'd (spec §4.7), one driver goroutine per worker,
// sharing one JobFactory. Generalized from the task-pool executor's
// errgroup-driven fan-out/fan-in, substituting a procworker.Worker's
// request/response round trip for a plain function call.
package procpool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelrun/dispatch/internal/interrupt"
	"github.com/kestrelrun/dispatch/internal/jobfactory"
	"github.com/kestrelrun/dispatch/internal/procworker"
	"github.com/kestrelrun/dispatch/internal/sentinel"
)

// Hooks mirrors the instrumentation options spec §4.11 lists.
type Hooks[I, O any] struct {
	Start  func(item I, index int)
	Finish func(item I, index int, result O, err error)
}

// Pool owns a fixed set of re-exec'd worker processes.
type Pool[I, O any] struct {
	workers []*procworker.Worker
}

// Spawn starts n worker processes, each running the function registered
// under funcName.
func Spawn[I, O any](funcName string, n int) (*Pool[I, O], error) {
	if funcName == "" {
		return nil, fmt.Errorf("procpool: WithFunc is required for the process substrate")
	}

	workers := make([]*procworker.Worker, 0, n)
	for i := 0; i < n; i++ {
		w, err := procworker.Spawn(funcName)
		if err != nil {
			for _, started := range workers {
				_ = started.Kill()
			}
			return nil, fmt.Errorf("procpool: spawning worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}
	return &Pool[I, O]{workers: workers}, nil
}

// KillAll force-terminates every worker process. It implements
// interrupt.Killer.
func (p *Pool[I, O]) KillAll() {
	for _, w := range p.workers {
		_ = w.Kill()
	}
}

// Run drives factory with one goroutine per worker process until the
// factory is exhausted or a worker reports a non-nil error, then closes
// (or, if sleepAfter, leaves running) every worker.
func (p *Pool[I, O]) Run(ctx context.Context, factory *jobfactory.Factory[I], hooks Hooks[I, O], interruptSig os.Signal, sleepAfter, discardResult bool) ([]O, error) {
	var results []O
	var exception error
	var killed bool

	runErr := interrupt.New(interruptSig).Guard("process pool", p, func() error {
		results, exception, killed = p.dispatch(ctx, factory, hooks, discardResult)
		return nil
	})
	if runErr != nil {
		exception = runErr
	}

	// A Kill has already hard-terminated every worker inside dispatch; a
	// graceful closeAll on top of that would just send terminators down
	// pipes nobody is reading anymore.
	if !killed {
		closeErr := p.closeAll(sleepAfter)
		if exception == nil && closeErr != nil {
			return nil, closeErr
		}
	}

	if exception != nil {
		return nil, sentinel.Classify(exception)
	}
	return results, nil
}

// dispatch fans factory out across one goroutine per worker. A Break from
// fn stops further dispatch but lets in-flight workers finish their current
// job and exit cleanly; a Kill additionally cancels ctx and hard-kills every
// worker process immediately, per spec §4.7 step 4 — survivors don't get to
// finish what they're holding.
func (p *Pool[I, O]) dispatch(ctx context.Context, factory *jobfactory.Factory[I], hooks Hooks[I, O], discardResult bool) ([]O, error, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var exception error
	var killOnce sync.Once
	var killed bool
	res := newResults[O](factory.Size())

	for _, w := range p.workers {
		w := w
		g.Go(func() error {
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

				raw, err := w.Work(pair.Item, pair.Index, discardResult)
				var result O
				if err == nil {
					if r, ok := raw.(O); ok {
						result = r
					}
				}

				if hooks.Finish != nil {
					mu.Lock()
					hooks.Finish(pair.Item, pair.Index, result, err)
					mu.Unlock()
				}

				if err != nil {
					isKill := errors.Is(err, sentinel.ErrKill)

					mu.Lock()
					// First failure wins: once something has stopped dispatch,
					// later errors are usually just fallout from that (e.g. a
					// killed worker's connection breaking under a sibling
					// goroutine) and shouldn't clobber the real cause.
					if exception == nil {
						exception = err
					}
					mu.Unlock()

					if isKill {
						killOnce.Do(func() {
							killed = true
							cancel()
							p.KillAll()
						})
					}
					return nil
				}

				res.set(pair.Index, result)
			}
		})
	}

	_ = g.Wait()

	if exception != nil {
		return nil, exception, killed
	}
	return res.slice(), nil, false
}

func (p *Pool[I, O]) closeAll(sleepAfter bool) error {
	var first error
	for _, w := range p.workers {
		if err := w.Close(sleepAfter); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type results[O any] struct {
	mu   sync.Mutex
	vals []O
}

func newResults[O any](size int) *results[O] {
	if size < 0 {
		size = 0
	}
	return &results[O]{vals: make([]O, size)}
}

func (r *results[O]) set(index int, v O) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index >= len(r.vals) {
		grown := make([]O, index+1)
		copy(grown, r.vals)
		r.vals = grown
	}
	r.vals[index] = v
}

func (r *results[O]) slice() []O {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]O, len(r.vals))
	copy(out, r.vals)
	return out
}
