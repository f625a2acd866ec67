package procpool

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelrun/dispatch/internal/jobfactory"
	"github.com/kestrelrun/dispatch/internal/registry"
	"github.com/kestrelrun/dispatch/internal/sentinel"
	"github.com/kestrelrun/dispatch/internal/wire"
	"github.com/kestrelrun/dispatch/internal/workerloop"
)

// TestMain re-execs this same test binary as a worker process when
// DISPATCH_WORKER_FUNC is set, the standard Go trick for exercising
// os/exec-spawned subprocess code against a real binary without shipping
// one separately. Anything that would otherwise run `go test`'s own flag
// parsing and test selection is skipped entirely on that path.
func TestMain(m *testing.M) {
	wire.RegisterTypes(0)
	registry.Register("double", func(ctx context.Context, x int, i int) (int, error) {
		return x * 2, nil
	})
	registry.Register("fail-on-three", func(ctx context.Context, x int, i int) (int, error) {
		if x == 3 {
			return 0, fmt.Errorf("three is unlucky")
		}
		return x, nil
	})
	registry.Register("kill-on-three", func(ctx context.Context, x int, i int) (int, error) {
		if x == 3 {
			return 0, sentinel.ErrKill
		}
		return x, nil
	})

	if funcName := os.Getenv("DISPATCH_WORKER_FUNC"); funcName != "" {
		os.Exit(runAsWorker(funcName))
	}

	os.Exit(m.Run())
}

type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdio) Close() error                { return nil }

var _ io.ReadWriteCloser = stdio{}

func runAsWorker(funcName string) int {
	fn, ok := registry.Lookup(funcName)
	if !ok {
		fmt.Fprintf(os.Stderr, "procpool test worker: no such func %q\n", funcName)
		return 1
	}
	ch := wire.NewChannel(stdio{})
	if err := workerloop.Run(context.Background(), ch, fn); err != nil {
		fmt.Fprintf(os.Stderr, "procpool test worker: %v\n", err)
		return 1
	}
	return 0
}

func TestPoolRunDoublesEveryItem(t *testing.T) {
	pool, err := Spawn[int, int]("double", 3)
	require.NoError(t, err)

	factory := jobfactory.FromSlice([]int{1, 2, 3, 4, 5, 6})
	results, err := pool.Run(context.Background(), factory, Hooks[int, int]{}, nil, false, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6, 8, 10, 12}, results)
}

func TestPoolRunSurfacesWorkerError(t *testing.T) {
	pool, err := Spawn[int, int]("fail-on-three", 2)
	require.NoError(t, err)

	factory := jobfactory.FromSlice([]int{1, 2, 3, 4})
	results, err := pool.Run(context.Background(), factory, Hooks[int, int]{}, nil, false, false)
	assert.Error(t, err)
	assert.Nil(t, results)
}

func TestPoolRunHardKillsSurvivorsOnKillSentinel(t *testing.T) {
	pool, err := Spawn[int, int]("kill-on-three", 4)
	require.NoError(t, err)

	factory := jobfactory.FromSlice([]int{1, 2, 3, 4, 5, 6, 7, 8})
	results, err := pool.Run(context.Background(), factory, Hooks[int, int]{}, nil, false, false)
	assert.ErrorIs(t, err, sentinel.ErrKill)
	assert.Nil(t, results)

	for _, w := range pool.workers {
		_, workErr := w.Work(0, 0, false)
		assert.Error(t, workErr, "worker %d should already be dead after the Kill", w.Pid())
	}
}

func TestPoolRunWithDiscardResultStillSucceeds(t *testing.T) {
	pool, err := Spawn[int, int]("double", 2)
	require.NoError(t, err)

	factory := jobfactory.FromSlice([]int{1, 2, 3, 4})
	results, err := pool.Run(context.Background(), factory, Hooks[int, int]{}, nil, false, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, results, "discarded results come back as zero values, never encoded by the worker")
}

func TestSpawnRequiresFuncName(t *testing.T) {
	_, err := Spawn[int, int]("", 1)
	assert.Error(t, err)
}
