package streaminfo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueNeverExceedsLimit(t *testing.T) {
	q := NewRequestQueue(4)

	var (
		running int32
		maxSeen int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					seen := atomic.LoadInt32(&maxSeen)
					if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(4))
	snap := q.Snapshot()
	assert.Equal(t, 0, snap.Running)
	assert.Equal(t, 0, snap.Pending)
	assert.Equal(t, 4, snap.Limit)
	assert.LessOrEqual(t, snap.Peak, 4)
}

func TestQueueRunsPendingTasksInOrder(t *testing.T) {
	q := NewRequestQueue(1)

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		require.Eventually(t, func() bool { return q.Snapshot().Pending == i+1 }, time.Second, time.Millisecond)
	}

	close(block)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueueCancelledPendingTaskNeverRuns(t *testing.T) {
	q := NewRequestQueue(1)

	block := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Do(context.Background(), func(context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Do(ctx, func(context.Context) error {
			atomic.StoreInt32(&ran, 1)
			return nil
		})
	}()
	require.Eventually(t, func() bool { return q.Snapshot().Pending == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, q.Snapshot().Pending)

	close(block)
	<-done

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	assert.Equal(t, 0, q.Snapshot().Running)
}

func TestQueueReportsTaskError(t *testing.T) {
	q := NewRequestQueue(2)
	err := q.Do(context.Background(), func(context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, q.Snapshot().Running)
}

func TestStaggerDelay(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, StaggerDelay(0, true))
	assert.Equal(t, 1200*time.Millisecond, StaggerDelay(2, true))
	assert.Equal(t, 200*time.Millisecond, StaggerDelay(0, false))
	assert.Equal(t, 600*time.Millisecond, StaggerDelay(2, false))
	assert.Equal(t, 200*time.Millisecond, StaggerDelay(-3, false))
}
