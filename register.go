package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kestrelrun/dispatch/internal/distributed"
	"github.com/kestrelrun/dispatch/internal/registry"
	"github.com/kestrelrun/dispatch/internal/wire"
	"github.com/kestrelrun/dispatch/internal/workerloop"
)

// Register records fn under name so it can be dispatched across a process
// boundary via WithFunc, where a closure cannot travel (spec §2).
// fn must have the shape func(context.Context, I, int) (O, error) for some
// types I, O; Register does not check this until the function is actually
// invoked as a worker.
//
// Register is meant to be called from a package-level var or an init
// function, before RunWorker runs, exactly the way the teacher's examples
// register flag-parsed subcommands at startup.
func Register(name string, fn any) {
	registry.Register(name, fn)
}

// RunWorker is the worker-side entry point every main() using the process
// or distributed substrate must call unconditionally at startup, before
// doing anything else. If the process was re-exec'd or remotely spawned as
// a worker (DISPATCH_WORKER_FUNC or MASTER is set in its environment), it
// runs the worker loop to completion and calls os.Exit; otherwise it
// returns immediately and the caller's main() proceeds normally (spec §2).
func RunWorker() {
	masterAddr := os.Getenv("MASTER")
	funcName := os.Getenv("DISPATCH_WORKER_FUNC")

	if masterAddr == "" && funcName == "" {
		return
	}

	ctx := context.Background()
	var err error

	if masterAddr != "" {
		err = distributed.RunSlave(ctx, masterAddr, funcName)
	} else {
		err = runProcessWorker(ctx, funcName)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "dispatch: worker exiting: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// stdio adapts the process's own stdin/stdout into one io.ReadWriteCloser,
// the worker-side half of procworker.Worker's pipe pair.
type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdio) Close() error                { return nil }

var _ io.ReadWriteCloser = stdio{}

func runProcessWorker(ctx context.Context, funcName string) error {
	fn, ok := registry.Lookup(funcName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchFunc, funcName)
	}
	ch := wire.NewChannel(stdio{})
	return workerloop.Run(ctx, ch, fn)
}
