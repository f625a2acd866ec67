// Package wire implements the self-delimiting framing codec workers use to
// talk to their driver over a pipe or socket (spec §6, "Wire framing").
//
// Framing itself is gob's job: gob.Decoder already knows where one encoded
// value ends and the next begins, so a Channel here is just a long-lived
// (Encoder, Decoder) pair over one connection — the same approach
// other_examples/unixpickle-jobempire's gob-typed TaskChannel takes. Only
// three frame kinds exist: a job, a result, and a terminator.
package wire

import (
	"encoding/gob"
	"fmt"
	"io"
	"sync"
)

// Kind distinguishes the three frame shapes spec §6 allows on the wire.
type Kind int

const (
	// KindJob carries a (item, index) pair dispatched to a worker.
	KindJob Kind = iota
	// KindResult carries a worker's reply: either a value or an
	// ExceptionWrapper.
	KindResult
	// KindTerminator is the bare "null" frame that tells a worker's
	// read loop to shut down cleanly.
	KindTerminator
)

// Frame is the envelope placed on the wire. Item and Value are carried as
// `any` and recovered with a type assertion by the caller, who knows I and
// R from its own generic instantiation; gob requires concrete registered
// types underneath the interface, which RegisterTypes arranges for.
type Frame struct {
	Kind    Kind
	Index   int
	Item    any
	Value   any
	Wrapped *ExceptionWrapper
	// Discard marks a job frame whose caller has no use for the result
	// (PreserveResults(false); spec §4.11). The worker still runs the
	// function and still reports an exception if it errors, but on
	// success it sends back a bare KindResult with Value left nil instead
	// of encoding the real return value, so a result type nobody asked
	// for never has to be gob-registered or cross the wire.
	Discard bool
}

// ExceptionWrapper carries a worker-side failure across the wire (spec §6,
// "ExceptionWrapper frame carries a structured error with the class name
// and message").
type ExceptionWrapper struct {
	ClassName string
	Message   string
}

func (e *ExceptionWrapper) Error() string {
	return fmt.Sprintf("%s: %s", e.ClassName, e.Message)
}

// WrapError builds an ExceptionWrapper from any error, using its dynamic
// type name as the class name.
func WrapError(err error) *ExceptionWrapper {
	return &ExceptionWrapper{
		ClassName: fmt.Sprintf("%T", err),
		Message:   err.Error(),
	}
}

var registerOnce sync.Once

// RegisterTypes registers the concrete item/result types an application
// uses so gob can encode/decode them behind the Frame.Item / Frame.Value
// `any` fields. It must be called (for each distinct type) before the
// first Frame crosses the wire — mirroring jobempire's
// `gob.Register(&FileTransfer{})` pattern. Safe to call from multiple
// goroutines or multiple times with the same types.
func RegisterTypes(values ...any) {
	for _, v := range values {
		gob.Register(v)
	}
}

// Channel is a long-lived framed connection: one gob.Encoder and one
// gob.Decoder sharing an underlying io.ReadWriteCloser.
type Channel struct {
	enc *gob.Encoder
	dec *gob.Decoder
	rwc io.ReadWriteCloser
	mu  sync.Mutex
}

// NewChannel wraps rwc (a pipe end or a socket) as a framed Channel.
func NewChannel(rwc io.ReadWriteCloser) *Channel {
	return &Channel{
		enc: gob.NewEncoder(rwc),
		dec: gob.NewDecoder(rwc),
		rwc: rwc,
	}
}

// Send writes one frame. Concurrent Send calls are serialized; a gob
// stream is not safe for concurrent writers.
func (c *Channel) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(f)
}

// Receive reads the next frame. It is the caller's job to serialize
// concurrent readers if more than one exists (in this package, only ever
// one reader per Channel is used).
func (c *Channel) Receive() (Frame, error) {
	var f Frame
	err := c.dec.Decode(&f)
	return f, err
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	return c.rwc.Close()
}

// SendJob frames a (item, index) job. discard marks the job so the worker
// skips serializing its return value on success (PreserveResults(false)).
func (c *Channel) SendJob(item any, index int, discard bool) error {
	return c.Send(Frame{Kind: KindJob, Item: item, Index: index, Discard: discard})
}

// SendResult frames a successful result.
func (c *Channel) SendResult(index int, value any) error {
	return c.Send(Frame{Kind: KindResult, Index: index, Value: value})
}

// SendException frames a worker-side failure as its class name and message
// strings (see WrapError), so the error value itself never has to be
// gob-encodable.
func (c *Channel) SendException(index int, err error) error {
	return c.Send(Frame{Kind: KindResult, Index: index, Wrapped: WrapError(err)})
}

// SendTerminator sends the "null" shutdown frame (spec §6: "a bare null
// means shut down cleanly").
func (c *Channel) SendTerminator() error {
	return c.Send(Frame{Kind: KindTerminator})
}
