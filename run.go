package dispatch

import "context"

// Run fans out n workers running fn with no input item beyond their own
// worker index — for workloads that are parameterized entirely by worker
// number rather than by a list of items. It is a thin convenience over
// EachWithIndex (spec §6's supplemented addition; see DESIGN.md), not a
// distinct substrate: InProcesses/InThreads/WithDistribute still choose how
// the n workers are realized.
func Run(ctx context.Context, n int, fn func(ctx context.Context, worker int) error, opts ...Option) error {
	workers := make([]int, n)
	for i := range workers {
		workers[i] = i
	}
	opts = append(append([]Option{}, opts...), WithCount(n))
	_, err := EachWithIndex(ctx, FromSlice(workers), func(_ int, index int) error {
		return fn(ctx, index)
	}, opts...)
	return err
}
