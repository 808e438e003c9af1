package cache

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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func TestNewCoalescer_RejectsBadArgs(t *testing.T) {
	_, err := NewCoalescer[int](0, time.Second)
	require.Error(t, err)
	_, err = NewCoalescer[int](10, 0)
	require.Error(t, err)
}

func TestGetOrCompute_CachesWithinTTL(t *testing.T) {
	clock := newClock()
	c, err := NewCoalescer[string](8, time.Second, WithClock(clock.Now))
	require.NoError(t, err)

	var calls int32
	compute := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	v1, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	clock.Advance(900 * time.Millisecond)
	v2, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(200 * time.Millisecond)
	_, err = c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
}

func TestGetOrCompute_SingleFlight(t *testing.T) {
	c, err := NewCoalescer[int](8, time.Minute)
	require.NoError(t, err)

	var calls int32
	release := make(chan struct{})
	compute := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "same", compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give every goroutine time to attach before releasing the computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c, err := NewCoalescer[int](8, time.Minute)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.GetOrCompute(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().Len)

	v, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrCompute_CallerCancellationDetachesOnlyThatCaller(t *testing.T) {
	c, err := NewCoalescer[int](8, time.Minute)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var computeCtxErr atomic.Value
	compute := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		if ctx.Err() != nil {
			computeCtxErr.Store(ctx.Err())
		}
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "k", compute)
		errCh <- err
	}()
	<-started

	waiter := make(chan int, 1)
	go func() {
		v, _ := c.GetOrCompute(context.Background(), "k", compute)
		waiter <- v
	}()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.Equal(t, 1, <-waiter)
	assert.Nil(t, computeCtxErr.Load())

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestInvalidateAndPurge(t *testing.T) {
	c, err := NewCoalescer[int](8, time.Minute)
	require.NoError(t, err)

	one := func(context.Context) (int, error) { return 1, nil }
	_, _ = c.GetOrCompute(context.Background(), "a", one)
	_, _ = c.GetOrCompute(context.Background(), "b", one)
	require.Equal(t, 2, c.Stats().Len)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Stats().Len)
}

func TestLRUBound(t *testing.T) {
	c, err := NewCoalescer[int](2, time.Minute)
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		k := k
		_, _ = c.GetOrCompute(context.Background(), k, func(context.Context) (int, error) { return len(k), nil })
	}
	assert.Equal(t, 2, c.Stats().Len)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestSet(t *testing.T) {
	clock := newClock()
	c, err := NewCoalescer[int](4, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	c.Set("a", 7)
	v, err := c.GetOrCompute(context.Background(), "a", func(context.Context) (int, error) {
		return 0, errors.New("must not run")
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	clock.Advance(time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestWithLookupObserver(t *testing.T) {
	clock := newClock()
	var lookups []bool
	c, err := NewCoalescer[int](4, time.Second, WithClock(clock.Now), WithLookupObserver(func(hit bool) {
		lookups = append(lookups, hit)
	}))
	require.NoError(t, err)

	one := func(context.Context) (int, error) { return 1, nil }
	_, _ = c.GetOrCompute(context.Background(), "k", one)
	_, _ = c.GetOrCompute(context.Background(), "k", one)
	_, _ = c.Get("k")
	clock.Advance(time.Second)
	_, _ = c.GetOrCompute(context.Background(), "k", one)

	assert.Equal(t, []bool{false, true, false}, lookups, "plain Get is not reported")
	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
}
