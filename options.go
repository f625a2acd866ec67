package dispatch

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Option configures a Map/Each call. Options compose the way the teacher's
// WorkerPoolOption does: a functional option closes over a private config
// struct, so new options never break existing call sites.
type Option func(*config)

// DistributeCommandFunc builds the command that starts a worker on a
// remote host, given the hostname, the address the worker should dial back
// to, and the registered function it should run. The default implementation
// runs `ssh host MASTER=addr|port DISPATCH_WORKER_FUNC=name <the current
// binary>` (spec §4.8); tests substitute a local command here to exercise
// the distributed path without a real sshd.
type DistributeCommandFunc func(host, masterAddr string, masterPort int, funcName string) *exec.Cmd

// ProgressHook is the well-defined hook contract spec §1 calls out: the
// progress-bar widget itself is an external collaborator, invoked only
// through Increment.
type ProgressHook interface {
	Increment()
}

type config struct {
	hasCount bool
	count    int

	hasInProcesses bool
	inProcesses    int
	hasInThreads   bool
	inThreads      int

	maxRate float64

	withIndex       bool
	preserveResults bool

	start          any
	startItemType  string
	finish         any
	finishItemType string
	finishResType  string

	progress ProgressHook

	interruptSignal os.Signal
	sleepAfter      bool

	distribute        []string
	distributeTimeout time.Duration
	distributeCommand DistributeCommandFunc
	localAddress      string

	funcName string

	statsSink *Stats

	pinWorkers bool
}

func newConfig(opts []Option) *config {
	cfg := &config{
		preserveResults:   true,
		distributeTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithCount sets the number of workers, for whichever substrate is
// ultimately chosen. Superseded by InProcesses/InThreads when either forces
// a specific substrate. WithCount(0) explicitly requests the direct, serial
// substrate (spec §4.12).
func WithCount(n int) Option {
	return func(c *config) {
		c.hasCount = true
		c.count = n
	}
}

// InProcesses forces the process substrate with exactly n workers.
func InProcesses(n int) Option {
	return func(c *config) {
		c.hasInProcesses = true
		c.inProcesses = n
	}
}

// InThreads forces the in-task (goroutine) substrate with exactly n workers.
func InThreads(n int) Option {
	return func(c *config) {
		c.hasInThreads = true
		c.inThreads = n
	}
}

// WithMaxRate activates the JobFactory's token-bucket throttle at r jobs
// per second (spec §4.1, §4.11).
func WithMaxRate(r float64) Option {
	return func(c *config) {
		c.maxRate = r
	}
}

// WithIndexArg records the with_index flag (spec §4.11). It does not change
// which function shape is called: Map and Each always pass just the item,
// and MapWithIndex and EachWithIndex always pass (item, index), whether or
// not this option is given.
func WithIndexArg() Option {
	return func(c *config) {
		c.withIndex = true
	}
}

// PreserveResults controls whether worker return values are kept.
// PreserveResults(false) is what Each uses under the hood: workers discard
// their return value so nothing crosses the wire for it (spec §4.11).
func PreserveResults(keep bool) Option {
	return func(c *config) {
		c.preserveResults = keep
	}
}

// WithStart installs the `start` instrumentation hook, called on the
// driver before dispatch, under the shared mutex (spec §4.11).
func WithStart[I any](fn func(item I, index int)) Option {
	return func(c *config) {
		c.start = fn
		c.startItemType = typeName[I]()
	}
}

// WithFinish installs the `finish` instrumentation hook, called on the
// driver after dispatch, under the shared mutex (spec §4.11). result is the
// designated no-result marker's zero value on the failure path, resolving
// the Open Question in spec §9 about what `finish` sees when the user
// function errors.
func WithFinish[I, O any](fn func(item I, index int, result O, err error)) Option {
	return func(c *config) {
		c.finish = fn
		c.finishItemType = typeName[I]()
		c.finishResType = typeName[O]()
	}
}

// WithProgress installs a progress hook, implemented as a `finish` wrapper
// that increments an external widget (spec §4.11). It requires a finite
// source; Map returns an error if Progress is set against an unbounded
// producer- or queue-mode source.
func WithProgress(h ProgressHook) Option {
	return func(c *config) {
		c.progress = h
	}
}

// WithInterruptSignal overrides the signal the interrupt handler traps
// (process and distributed pools only; spec §4.11, §4.6).
func WithInterruptSignal(sig os.Signal) Option {
	return func(c *config) {
		c.interruptSignal = sig
	}
}

// SleepAfter skips the pipe-close-and-reap step when a driver exits,
// leaving the worker process alive (spec §4.7 step 5).
func SleepAfter(sleep bool) Option {
	return func(c *config) {
		c.sleepAfter = sleep
	}
}

// WithDistribute activates the distributed substrate across the given
// remote hostnames, one worker per entry (a host listed N times gets N
// workers).
func WithDistribute(hosts []string) Option {
	return func(c *config) {
		c.distribute = hosts
	}
}

// WithDistributeTimeout overrides the default 60s the master waits for
// connect-backs before returning ErrRemoteWorkerTimeout.
func WithDistributeTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.distributeTimeout = d
		}
	}
}

// WithDistributeCommand overrides how the master starts a worker on a
// remote host. The default spawns `ssh host <self>` with MASTER set.
func WithDistributeCommand(fn DistributeCommandFunc) Option {
	return func(c *config) {
		c.distributeCommand = fn
	}
}

// WithLocalAddress overrides the address (a host or IP, without a port) the
// master binds its listener to and advertises to remote workers, instead of
// listening on every interface and advertising the auto-detected outbound
// address.
func WithLocalAddress(addr string) Option {
	return func(c *config) {
		c.localAddress = addr
	}
}

// WithFunc names the registered function (see Register) process and
// distributed workers should run. Required whenever InProcesses or
// WithDistribute forces a substrate that cannot carry a closure.
func WithFunc(name string) Option {
	return func(c *config) {
		c.funcName = name
	}
}

// WithStats attaches a Stats snapshot that Map keeps updated as jobs are
// dispatched and completed (a supplemented, non-spec feature; see
// SPEC_FULL.md §6).
func WithStats(s *Stats) Option {
	return func(c *config) {
		c.statsSink = s
	}
}

// PinWorkers asks the task-pool executor to pin each worker goroutine to
// its own OS thread and, where supported, a dedicated CPU core.
func PinWorkers(pin bool) Option {
	return func(c *config) {
		c.pinWorkers = pin
	}
}

func typeName[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// checkHook validates a hook's recorded type signature against the types
// Map is being called with, panicking on mismatch exactly as the teacher's
// checkfuncs does (pool/helpers.go) — a functional option captured with the
// wrong type parameter is a programming error, not a runtime condition to
// recover from.
func checkHook(hookName, gotType, wantType string) {
	if gotType != "" && gotType != wantType {
		panic(fmt.Sprintf("dispatch: %s hook expects type %s, but this call processes type %s", hookName, gotType, wantType))
	}
}
