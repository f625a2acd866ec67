// Package remote implements RemoteWorker: the same request/response
// contract as procworker.Worker, but over a TCP connection a distributed
// slave dialed back on, instead of a local pipe pair (spec §4.3, §4.9).
// Grounded on hnakamur-remoteworkers' master-accepts-worker-connections
// design, adapted from its WebSocket transport to spec.md's plain TCP
// connect-back.
package remote

import (
	"net"

	"github.com/kestrelrun/dispatch/internal/sentinel"
	"github.com/kestrelrun/dispatch/internal/wire"
)

// Worker drives one connected-back remote slave over its TCP connection.
type Worker struct {
	conn net.Conn
	ch   *wire.Channel
	addr string
}

// New wraps an accepted connection as a RemoteWorker.
func New(conn net.Conn) *Worker {
	return &Worker{
		conn: conn,
		ch:   wire.NewChannel(conn),
		addr: conn.RemoteAddr().String(),
	}
}

// Addr reports the worker's remote address, for diagnostics and for
// grouping workers by host when killing a distributed run.
func (w *Worker) Addr() string {
	return w.addr
}

// Work sends one (item, index) job and blocks for the matching result.
// discard marks the job so the slave skips serializing its return value
// (PreserveResults(false)).
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

// Close sends a terminator frame and closes the connection.
func (w *Worker) Close() error {
	_ = w.ch.SendTerminator()
	return w.conn.Close()
}

// Kill hard-closes the connection without a graceful terminator, for the
// interrupt handler's force-stop path. The slave process at the other end
// notices the broken connection and exits its own accept loop.
func (w *Worker) Kill() error {
	return w.conn.Close()
}
