// Package dispatch applies a user-supplied function to every item of a
// bounded or unbounded input, spreading the work across a pool of workers,
// and returns the results in input order.
//
// Workers run on one of four substrates, chosen by Option; absent one, the
// in-task substrate runs one worker per logical CPU:
//
//   - direct: the caller's own goroutine, serially (WithCount(0)).
//   - in-task: goroutines sharing a JobFactory, for CPU-light or already
//     thread-safe work. The default.
//   - process: the current binary re-exec'd as children, talking to the
//     parent over pipes, for work that should be isolated from the caller's
//     process (panics, native crashes, memory leaks).
//   - distributed: process workers on remote hosts, spawned over SSH and
//     connecting back to a local TCP listener.
//
// # Basic usage
//
//	ctx := context.Background()
//	results, err := dispatch.Map(ctx, dispatch.FromSlice([]int{1, 2, 3, 4}),
//		func(x int) (int, error) {
//			return x * x, nil
//		})
//
// # Process and distributed workers
//
// Go cannot ship a closure across a process boundary. To run a function in a
// process or distributed pool, register it once at package init time and
// refer to it by name:
//
//	func init() {
//		dispatch.Register("square", func(ctx context.Context, x int, i int) (int, error) {
//			return x * x, nil
//		})
//	}
//
//	func main() {
//		dispatch.RunWorker() // no-op unless this process was spawned as a worker
//		results, err := dispatch.Map[int, int](ctx, dispatch.FromSlice(items),
//			nil, dispatch.InProcesses(4), dispatch.WithFunc("square"))
//	}
//
// Exactly one error is ever surfaced from Map: results accumulated before a
// failure are discarded, never returned as a partial slice. Break and Kill
// are the two exceptions — both end the run early and return (nil, nil)
// rather than an error, since stopping on either is cooperative, not a
// failure.
package dispatch
