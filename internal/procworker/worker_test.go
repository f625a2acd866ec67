package procworker

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrun/dispatch/internal/registry"
	"github.com/kestrelrun/dispatch/internal/sentinel"
	"github.com/kestrelrun/dispatch/internal/wire"
	"github.com/kestrelrun/dispatch/internal/workerloop"
)

type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdio) Close() error                { return nil }

func TestMain(m *testing.M) {
	wire.RegisterTypes(0)
	registry.Register("increment", func(ctx context.Context, x int, i int) (int, error) {
		return x + 1, nil
	})

	if funcName := os.Getenv("DISPATCH_WORKER_FUNC"); funcName != "" {
		fn, ok := registry.Lookup(funcName)
		if !ok {
			os.Exit(1)
		}
		ch := wire.NewChannel(stdio{})
		if err := workerloop.Run(context.Background(), ch, fn); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	os.Exit(m.Run())
}

func TestWorkerWorkRoundTrips(t *testing.T) {
	w, err := Spawn("increment")
	require.NoError(t, err)
	defer w.Close(false)

	result, err := w.Work(41, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestWorkerCloseWaitsForExit(t *testing.T) {
	w, err := Spawn("increment")
	require.NoError(t, err)

	_, err = w.Work(1, 0, false)
	require.NoError(t, err)

	assert.NoError(t, w.Close(false))
}

func TestWorkerPidIsPositive(t *testing.T) {
	w, err := Spawn("increment")
	require.NoError(t, err)
	defer w.Close(false)

	assert.Greater(t, w.Pid(), 0)
}

func TestWorkerWorkWithDiscardReturnsNilValue(t *testing.T) {
	w, err := Spawn("increment")
	require.NoError(t, err)
	defer w.Close(false)

	result, err := w.Work(41, 0, true)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSpawnWithUnknownFuncFailsAtFirstJob(t *testing.T) {
	w, err := Spawn("does-not-exist")
	require.NoError(t, err)
	defer w.Close(false)

	_, err = w.Work(1, 0, false)
	assert.ErrorIs(t, err, sentinel.ErrDeadWorker)
}
