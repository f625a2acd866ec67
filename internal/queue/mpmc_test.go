package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockingEnqueueDequeueOrder(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(i))
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestBlockingDequeueBlocksThenWakes(t *testing.T) {
	q := New[string](4)
	ctx := context.Background()

	done := make(chan string, 1)
	go func() {
		v, err := q.Dequeue(ctx)
		require.NoError(t, err)
		done <- v
	}()

	// Give the consumer a chance to park before we push.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, q.Waiters())

	require.NoError(t, q.Enqueue("hello"))

	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up")
	}
}

func TestBlockingCloseDrainsThenErrors(t *testing.T) {
	q := New[int](4)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	q.Close()

	ctx := context.Background()
	v, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBlockingEnqueueAfterCloseFails(t *testing.T) {
	q := New[int](4)
	q.Close()
	err := q.Enqueue(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBlockingConcurrentProducersConsumersSeeEveryItem(t *testing.T) {
	q := New[int](16)
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(4)
	for p := 0; p < 4; p++ {
		go func(p int) {
			defer wg.Done()
			for i := p; i < n; i += 4 {
				require.NoError(t, q.Enqueue(i))
			}
		}(p)
	}

	seen := make([]bool, n)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	consumers.Add(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := 0
	for c := 0; c < 4; c++ {
		go func() {
			defer consumers.Done()
			for {
				v, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v] = true
				count++
				done := count == n
				mu.Unlock()
				if done {
					cancel()
					return
				}
			}
		}()
	}

	wg.Wait()
	consumers.Wait()

	for i, ok := range seen {
		assert.True(t, ok, "item %d never dequeued", i)
	}
}
