package interrupt

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingKiller struct {
	mu      sync.Mutex
	killed  bool
	callLog *[]string
	name    string
}

func (k *recordingKiller) KillAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = true
	if k.callLog != nil {
		*k.callLog = append(*k.callLog, k.name)
	}
}

func (k *recordingKiller) wasKilled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.killed
}

// TestOnInterruptKillsMostRecentGroupFirst exercises the kill fan-out
// directly rather than through a live OS signal: raising a real signal
// whose default disposition is "terminate" would kill the test binary
// itself once the outermost Guard's stack empties and the handler restores
// that default disposition (see uninstall). That restore-and-re-raise path
// is exactly the behavior spec §4.4 calls for; it's exercised by killing
// worker groups without ever letting signal.Notify's default-suppression
// unwind for real in this process.
func TestOnInterruptKillsMostRecentGroupFirst(t *testing.T) {
	h := New(os.Interrupt)

	var log []string
	outer := &recordingKiller{callLog: &log, name: "outer"}
	inner := &recordingKiller{callLog: &log, name: "inner"}

	h.push("outer", outer)
	h.push("inner", inner)

	h.onInterrupt()

	require.True(t, inner.wasKilled())
	require.True(t, outer.wasKilled())
	require.Len(t, log, 2)
	assert.Equal(t, "inner", log[0], "most recently pushed group must be killed first")
	assert.Equal(t, "outer", log[1])

	h.mu.Lock()
	h.interrupted = false
	h.mu.Unlock()
	h.pop()
	h.pop()
}

func TestGuardPushesAndPopsStack(t *testing.T) {
	h := New(os.Interrupt)
	k := &recordingKiller{}

	before := len(h.stack)

	err := h.Guard("solo", k, func() error {
		h.mu.Lock()
		depth := len(h.stack)
		h.mu.Unlock()
		assert.Equal(t, before+1, depth)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, k.wasKilled())

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.stack, before)
}

func TestGuardPropagatesBodyError(t *testing.T) {
	h := New(os.Interrupt)
	k := &recordingKiller{}
	sentinel := assert.AnError

	err := h.Guard("solo", k, func() error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
