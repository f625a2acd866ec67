// Package procworker implements the local process worker: a re-exec of the
// current binary, talking over its stdin/stdout pipes, grounded on
// CZERTAINLY-Seeker's Runner (os/exec plus piped stdin/stdout) and
// unixpickle-jobempire's gob TaskChannel for the framing underneath (spec
// §4.2, §4.7).
package procworker

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/kestrelrun/dispatch/internal/sentinel"
	"github.com/kestrelrun/dispatch/internal/wire"
)

// pipes adapts a stdin writer and a stdout reader into one
// io.ReadWriteCloser so wire.Channel can frame both directions of a child
// process's standard streams.
type pipes struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p *pipes) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipes) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipes) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Worker drives one re-exec'd child process over its stdio pipes.
type Worker struct {
	cmd *exec.Cmd
	ch  *wire.Channel
}

// Spawn re-execs os.Args[0] with the DISPATCH_WORKER_FUNC environment
// variable set to funcName, so the child's call to dispatch.RunWorker picks
// up the worker-side loop instead of running main() normally.
func Spawn(funcName string) (*Worker, error) {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), "DISPATCH_WORKER_FUNC="+funcName)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("procworker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("procworker: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("procworker: start: %w", err)
	}

	rwc := &pipes{r: stdout, w: stdin}
	return &Worker{cmd: cmd, ch: wire.NewChannel(rwc)}, nil
}

// Work sends one (item, index) job and blocks for the matching result.
// io.EOF or any other read/write failure is reported as ErrDeadWorker,
// since at that point the child is presumed gone. discard marks the job so
// the child skips serializing its return value (PreserveResults(false)).
func (w *Worker) Work(item any, index int, discard bool) (any, error) {
	if err := w.ch.SendJob(item, index, discard); err != nil {
		return nil, sentinel.ErrDeadWorker
	}

	frame, err := w.ch.Receive()
	if err != nil {
		return nil, sentinel.ErrDeadWorker
	}

	if frame.Wrapped != nil {
		return nil, sentinel.FromWire(frame.Wrapped.ClassName, frame.Wrapped.Message)
	}
	return frame.Value, nil
}

// Pid reports the child's process ID, for the interrupt handler's kill-all.
func (w *Worker) Pid() int {
	if w.cmd.Process == nil {
		return -1
	}
	return w.cmd.Process.Pid
}

// Close sends a terminator frame, closes the pipes, and waits for the
// child to exit. If sleepAfter is set, Close does none of this: the pipes
// stay open and the child is left running, not waited on (spec §4.7 step 5).
func (w *Worker) Close(sleepAfter bool) error {
	if sleepAfter {
		return nil
	}
	_ = w.ch.SendTerminator()
	closeErr := w.ch.Close()
	waitErr := w.cmd.Wait()
	if closeErr != nil {
		return closeErr
	}
	return waitErr
}

// Kill force-terminates the child immediately, for the interrupt handler's
// hard-stop path.
func (w *Worker) Kill() error {
	if w.cmd.Process == nil {
		return nil
	}
	return w.cmd.Process.Kill()
}
