package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	RegisterTypes(0, "")
}

func pipeChannels() (*Channel, *Channel) {
	a, b := net.Pipe()
	return NewChannel(a), NewChannel(b)
}

func TestChannelRoundTripsJobFrame(t *testing.T) {
	left, right := pipeChannels()
	defer left.Close()
	defer right.Close()

	done := make(chan error, 1)
	go func() { done <- left.SendJob(42, 7, false) }()

	frame, err := right.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, KindJob, frame.Kind)
	assert.Equal(t, 7, frame.Index)
	assert.Equal(t, 42, frame.Item)
	assert.False(t, frame.Discard)
}

func TestChannelRoundTripsJobFrameWithDiscardSet(t *testing.T) {
	left, right := pipeChannels()
	defer left.Close()
	defer right.Close()

	done := make(chan error, 1)
	go func() { done <- left.SendJob(42, 7, true) }()

	frame, err := right.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.True(t, frame.Discard)
}

func TestChannelRoundTripsResultFrame(t *testing.T) {
	left, right := pipeChannels()
	defer left.Close()
	defer right.Close()

	done := make(chan error, 1)
	go func() { done <- left.SendResult(3, "ok") }()

	frame, err := right.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, KindResult, frame.Kind)
	assert.Equal(t, 3, frame.Index)
	assert.Equal(t, "ok", frame.Value)
	assert.Nil(t, frame.Wrapped)
}

func TestChannelRoundTripsExceptionFrame(t *testing.T) {
	left, right := pipeChannels()
	defer left.Close()
	defer right.Close()

	boom := assertError{"boom"}
	done := make(chan error, 1)
	go func() { done <- left.SendException(1, boom) }()

	frame, err := right.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	require.NotNil(t, frame.Wrapped)
	assert.Equal(t, "boom", frame.Wrapped.Message)
	assert.Contains(t, frame.Wrapped.Error(), "boom")
}

func TestChannelRoundTripsTerminatorFrame(t *testing.T) {
	left, right := pipeChannels()
	defer left.Close()
	defer right.Close()

	done := make(chan error, 1)
	go func() { done <- left.SendTerminator() }()

	frame, err := right.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, KindTerminator, frame.Kind)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
