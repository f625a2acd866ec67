// Package sentinel holds the dispatcher's well-known errors. They live here,
// rather than in the root package, so internal substrate packages
// (procworker, procpool, distributed, workerloop) can return and recognize
// them without importing the root package and creating an import cycle; the
// root package re-exports each as a package-level var.
package sentinel

import (
	"errors"
	"fmt"
)

var (
	// ErrDeadWorker is returned when a worker's pipe or socket closes, or
	// reads EOF, mid-request.
	ErrDeadWorker = errors.New("dispatch: worker died without responding")

	// ErrRemoteWorkerTimeout is returned by the distributed master when
	// fewer than the requested remote workers connect back in time.
	ErrRemoteWorkerTimeout = errors.New("dispatch: timed out waiting for remote workers to connect")

	// ErrBreak asks the dispatcher to stop issuing new work, letting
	// in-flight jobs finish naturally.
	ErrBreak = errors.New("dispatch: break")

	// ErrKill asks the dispatcher to stop issuing new work and force-kill
	// every surviving worker immediately.
	ErrKill = errors.New("dispatch: kill")

	// ErrNoSuchFunc is returned when a function name has no registration.
	ErrNoSuchFunc = errors.New("dispatch: no function registered under that name")
)

// UndumpableError stands in for a worker's result that the wire codec could
// not serialize. Original holds the encoder's error message.
type UndumpableError struct {
	Original string
}

func (e *UndumpableError) Error() string {
	return fmt.Sprintf("dispatch: worker error could not be serialized: %s", e.Original)
}

// RemoteError is what a worker-side failure looks like once it has crossed
// the wire and been re-raised on the master.
type RemoteError struct {
	ClassName string
	Message   string
}

func (e *RemoteError) Error() string {
	if e.ClassName == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.ClassName, e.Message)
}

// Classify maps a worker-reported error back onto ErrBreak or ErrKill when
// it is one of those sentinels, so errors.Is keeps working across the wire
// even though the concrete value that crossed it was a RemoteError.
func Classify(err error) error {
	switch {
	case errors.Is(err, ErrKill):
		return ErrKill
	case errors.Is(err, ErrBreak):
		return ErrBreak
	default:
		return err
	}
}

// BreakClassName and KillClassName are the wire class names workerloop
// substitutes for ErrBreak/ErrKill, so the driver side can recover the
// sentinel identity with errors.Is instead of getting back an opaque
// RemoteError (spec §4.5: Break/Kill must be recognizable after crossing a
// process boundary).
const (
	BreakClassName      = "dispatch.Break"
	KillClassName       = "dispatch.Kill"
	UndumpableClassName = "dispatch.Undumpable"
)

// ClassNameFor picks the wire class name for err: the sentinel's reserved
// name if err is ErrBreak or ErrKill, otherwise its dynamic Go type name.
func ClassNameFor(err error) string {
	switch {
	case errors.Is(err, ErrKill):
		return KillClassName
	case errors.Is(err, ErrBreak):
		return BreakClassName
	default:
		return fmt.Sprintf("%T", err)
	}
}

// FromWire reconstructs an error from a wire class name and message,
// recovering ErrBreak/ErrKill identity where applicable.
func FromWire(className, message string) error {
	switch className {
	case KillClassName:
		return ErrKill
	case BreakClassName:
		return ErrBreak
	case UndumpableClassName:
		return &UndumpableError{Original: message}
	default:
		return &RemoteError{ClassName: className, Message: message}
	}
}
