package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_ExpiresByInsertionTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string](5*time.Minute, WithClock(clock))

	c.Set("runs", "a")
	clock.Advance(4 * time.Minute)

	v, ok := c.Get("runs")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	// The read above must not extend the lifetime.
	clock.Advance(time.Minute)
	_, ok = c.Get("runs")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTL_SetRestartsLifetime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int](time.Minute, WithClock(clock))

	c.Set("k", 1)
	clock.Advance(50 * time.Second)
	c.Set("k", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTL_MaxEntriesDropsOldest(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int](time.Hour, WithClock(clock), WithMaxEntries(2))

	c.Set("a", 1)
	clock.Advance(time.Second)
	c.Set("b", 2)
	clock.Advance(time.Second)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestTTL_GetOrComputeCachesResult(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var hits, misses int
	c := New[[]string](5*time.Minute, WithClock(clock), WithLookupHook(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))

	var calls int
	compute := func(context.Context) ([]string, error) {
		calls++
		return []string{"2024021300"}, nil
	}

	ctx := context.Background()
	for range 3 {
		v, err := c.GetOrCompute(ctx, "runs", compute)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024021300"}, v)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, misses)

	clock.Advance(5 * time.Minute)
	_, err := c.GetOrCompute(ctx, "runs", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTTL_GetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := New[[]string](time.Minute)
	boom := errors.New("listing failed")

	_, err := c.GetOrCompute(context.Background(), "runs", func(context.Context) ([]string, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := c.GetOrCompute(context.Background(), "runs", func(context.Context) ([]string, error) {
		return []string{"x"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, v)
}

func TestTTL_GetOrComputeCoalesces(t *testing.T) {
	c := New[[]string](time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"2024021300", "2024021306"}, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([][]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), "runs", compute)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"2024021300", "2024021306"}, results[i])
	}
}

func TestTTL_GetOrComputeCallerCancellation(t *testing.T) {
	c := New[int](time.Minute)

	release := make(chan struct{})
	done := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		defer close(done)
		<-release
		// The shared computation is not cancelled with the first caller.
		return 42, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "k", compute)
		errCh <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-done

	require.Eventually(t, func() bool {
		v, ok := c.Get("k")
		return ok && v == 42
	}, time.Second, 5*time.Millisecond)
}
