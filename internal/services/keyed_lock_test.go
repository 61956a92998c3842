package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLock_GrantsInArrivalOrder(t *testing.T) {
	l := newKeyedLock()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "c1")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			u, err := l.Lock(ctx, "c1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			u()
		}(i)
		// let each waiter enqueue before the next one
		time.Sleep(20 * time.Millisecond)
	}

	unlock()
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestKeyedLock_IndependentKeys(t *testing.T) {
	l := newKeyedLock()
	ctx := context.Background()

	u1, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer u1()

	done := make(chan struct{})
	go func() {
		defer close(done)
		u2, err := l.Lock(ctx, "b")
		if assert.NoError(t, err) {
			u2()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedLock_CancelledWaiterLeavesQueue(t *testing.T) {
	l := newKeyedLock()
	unlock, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()

	u, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)
	u()
	assert.Empty(t, l.queues)
}
