package dispatch

import (
	"context"

	"github.com/kestrelrun/dispatch/internal/jobfactory"
)

// runDirect executes factory's jobs one at a time on the caller's own
// goroutine — the pool-size-0 substrate spec §4.12 specifies, useful for
// keeping a single code path for both parallel and serial execution during
// debugging. Break/Kill from fn end the loop and return (nil, nil), exactly
// as the parallel substrates do.
func runDirect[I, O any](ctx context.Context, factory *jobfactory.Factory[I], fn func(context.Context, I, int) (O, error), start func(I, int), finish func(I, int, O, error)) ([]O, error) {
	results := make([]O, 0)
	if size := factory.Size(); size > 0 {
		results = make([]O, 0, size)
	}

	for {
		pair, ok := factory.Next(ctx)
		if !ok {
			return results, nil
		}

		if start != nil {
			start(pair.Item, pair.Index)
		}

		result, err := fn(ctx, pair.Item, pair.Index)
		if err != nil {
			var zero O
			result = zero
		}

		if finish != nil {
			finish(pair.Item, pair.Index, result, err)
		}

		if err != nil {
			if isBreakOrKill(err) {
				return nil, nil
			}
			return nil, err
		}

		for len(results) <= pair.Index {
			var zero O
			results = append(results, zero)
		}
		results[pair.Index] = result
	}
}
