package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFansOutEveryWorkerIndex(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}

	err := Run(context.Background(), 4, func(ctx context.Context, worker int) error {
		mu.Lock()
		seen[worker] = true
		mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, seen, 4)
	for i := 0; i < 4; i++ {
		assert.True(t, seen[i])
	}
}
