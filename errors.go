package dispatch

import "github.com/kestrelrun/dispatch/internal/sentinel"

var (
	// ErrDeadWorker is returned when a worker's pipe or socket closes, or
	// reads EOF, mid-request. The worker is presumed gone; its driver stops
	// dispatching to it.
	ErrDeadWorker = sentinel.ErrDeadWorker

	// ErrRemoteWorkerTimeout is returned by the distributed master when
	// fewer than the requested remote workers connect back within the
	// WithDistributeTimeout duration (60s by default).
	ErrRemoteWorkerTimeout = sentinel.ErrRemoteWorkerTimeout

	// ErrBreak, returned from a user function, asks the dispatcher to stop
	// issuing new work. In-flight jobs on other workers finish naturally.
	// Map returns (nil, nil) when a worker reports Break.
	ErrBreak = sentinel.ErrBreak

	// ErrKill, returned from a user function, asks the dispatcher to stop
	// issuing new work and force-kill every surviving worker immediately.
	// Map returns (nil, nil) when a worker reports Kill.
	ErrKill = sentinel.ErrKill

	// ErrNoSuchFunc is the error a worker process (RunWorker) exits with
	// when the name set by WithFunc was never registered with Register. The
	// caller's Map sees such a worker as dead (ErrDeadWorker) or, for a
	// distributed worker that never connects back, ErrRemoteWorkerTimeout.
	ErrNoSuchFunc = sentinel.ErrNoSuchFunc
)

// UndumpableError is what the master receives in place of a worker's
// successful result when the wire codec could not serialize that result.
// Original carries the encoder's error message; the result value is lost.
// Worker-side errors themselves always cross as class name and message
// strings, so they never need this substitution.
type UndumpableError = sentinel.UndumpableError

// RemoteError is what a worker-side failure looks like once it has crossed
// the wire and been re-raised on the master. It carries the class name (the
// original error's dynamic type, informational only) and the message.
type RemoteError = sentinel.RemoteError
