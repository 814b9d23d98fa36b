package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AcquireRelease(t *testing.T) {
	p, err := New[int](2, func(_ context.Context, id int) (int, error) { return id * 10, nil })
	require.NoError(t, err)

	ctx := context.Background()
	h1, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)

	assert.NotEqual(t, h1.ID, h2.ID)
	assert.Equal(t, 1.0, p.Utilization())

	require.NoError(t, p.Release(h1))
	assert.Equal(t, 0.5, p.Utilization())

	h3, err := p.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, h1.ID, h3.ID, "idle handle is reused")
	assert.Equal(t, 2, p.Stats().Created)
}

func TestPool_InvalidCapacity(t *testing.T) {
	_, err := New[int](0, nil)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestPool_DoubleRelease(t *testing.T) {
	p, _ := New[struct{}](1, nil)
	h, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	require.NoError(t, p.Release(h))
	assert.ErrorIs(t, p.Release(h), ErrInvalidHandle)
	assert.ErrorIs(t, p.Release(nil), ErrInvalidHandle)
}

func TestPool_ExhaustionTimesOut(t *testing.T) {
	p, _ := New[struct{}](5, nil)
	ctx := context.Background()

	var granted, timedOut atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Acquire(ctx, 50*time.Millisecond)
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, ErrAcquireTimeout):
				timedOut.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), granted.Load())
	assert.Equal(t, int32(15), timedOut.Load())
	stats := p.Stats()
	assert.Equal(t, int64(15), stats.Timeouts)
	assert.Equal(t, 0, stats.Waiting)
	assert.Equal(t, 1.0, stats.PeakUtilization)
}

func TestPool_ReleaseHandsOffFIFO(t *testing.T) {
	p, _ := New[struct{}](1, nil)
	ctx := context.Background()
	held, err := p.Acquire(ctx, 0)
	require.NoError(t, err)

	order := make(chan int, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h, err := p.Acquire(ctx, 5*time.Second)
			if err != nil {
				return
			}
			order <- n
			_ = p.Release(h)
		}(i)
		// make the queue order deterministic
		require.Eventually(t, func() bool { return p.Stats().Waiting == i+1 }, time.Second, time.Millisecond)
	}

	require.NoError(t, p.Release(held))
	wg.Wait()
	close(order)

	var got []int
	for n := range order {
		got = append(got, n)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, int64(3), p.Stats().Handoffs)
}

func TestPool_ContextCancel(t *testing.T) {
	p, _ := New[struct{}](1, nil)
	_, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = p.Acquire(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Stats().Waiting)
}

func TestPool_CloseWakesWaitersAndClosesResources(t *testing.T) {
	var closed atomic.Int32
	p, _ := New[int](1,
		func(_ context.Context, id int) (int, error) { return id, nil },
		WithCloser[int](func(int) error { closed.Add(1); return nil }),
	)
	_, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), 0)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, <-errCh, ErrPoolClosed)
	assert.Equal(t, int32(1), closed.Load())

	_, err = p.Acquire(context.Background(), 0)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_FactoryErrorFreesSlot(t *testing.T) {
	fail := true
	p, _ := New[int](1, func(_ context.Context, id int) (int, error) {
		if fail {
			fail = false
			return 0, errors.New("dial failed")
		}
		return 1, nil
	})

	_, err := p.Acquire(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, 0, p.Stats().Active)

	h, err := p.Acquire(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Value)
}

func TestPool_FactoryErrorWakesQueuedWaiter(t *testing.T) {
	var calls atomic.Int32
	creating := make(chan struct{})
	unblock := make(chan struct{})
	p, _ := New[int](1, func(_ context.Context, id int) (int, error) {
		if calls.Add(1) == 1 {
			close(creating)
			<-unblock
			return 0, errors.New("dial failed")
		}
		return 7, nil
	})

	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), 0)
		firstErr <- err
	}()
	<-creating

	type acquired struct {
		h   *Handle[int]
		err error
	}
	second := make(chan acquired, 1)
	go func() {
		h, err := p.Acquire(context.Background(), 300*time.Millisecond)
		second <- acquired{h, err}
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, time.Millisecond)

	close(unblock)
	require.Error(t, <-firstErr)

	start := time.Now()
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 7, got.h.Value)
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Active)
	assert.Zero(t, stats.Timeouts)
	assert.Zero(t, stats.Waiting)
}

func TestPool_UtilizationObserver(t *testing.T) {
	var seen []float64
	var mu sync.Mutex
	p, _ := New[struct{}](4, nil, WithUtilizationObserver[struct{}](func(u float64) {
		mu.Lock()
		seen = append(seen, u)
		mu.Unlock()
	}))

	h, _ := p.Acquire(context.Background(), 0)
	_ = p.Release(h)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0.25, 0}, seen)
}
