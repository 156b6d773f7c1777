package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New(10, time.Minute, 0)
	defer c.Close()

	_, ok := c.Get("missing", "v1")
	require.False(t, ok)

	c.Set("key", "value", "v1", 0)
	value, ok := c.Get("key", "v1")
	require.True(t, ok)
	require.Equal(t, "value", value)

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, uint64(1), stats.Sets)
}

func TestStaleVersionIsMiss(t *testing.T) {
	c := New(10, time.Minute, 0)
	defer c.Close()

	c.Set("key", "old", "v1", 0)
	_, ok := c.Get("key", "v2")
	require.False(t, ok, "entry derived from a replaced document must not be served")
	require.Equal(t, 0, c.Len(), "stale entry is dropped on access")
}

func TestTTLExpiry(t *testing.T) {
	c := New(10, 10*time.Millisecond, 0)
	defer c.Close()

	c.Set("short", "value", "v1", 0)
	c.Set("pinned", "value", "v1", -1)

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("short", "v1")
	require.False(t, ok)
	_, ok = c.Get("pinned", "v1")
	require.True(t, ok, "negative ttl disables expiry")
}

func TestLRUEviction(t *testing.T) {
	c := New(3, time.Minute, 0)
	defer c.Close()

	c.Set("a", 1, "v1", 0)
	c.Set("b", 2, "v1", 0)
	c.Set("c", 3, "v1", 0)

	// Touch "a" so "b" becomes the least recently used.
	_, ok := c.Get("a", "v1")
	require.True(t, ok)

	c.Set("d", 4, "v1", 0)

	_, ok = c.Get("b", "v1")
	require.False(t, ok, "least recently used entry is evicted at capacity")
	_, ok = c.Get("a", "v1")
	require.True(t, ok)
	require.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(100, time.Minute, 0)
	defer c.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "computed", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := c.GetOrCompute(context.Background(), "key", "v1", 0, compute)
			require.NoError(t, err)
			require.Equal(t, "computed", value)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "concurrent misses collapse into one computation")

	// Subsequent calls hit the committed entry.
	_, err := c.GetOrCompute(context.Background(), "key", "v1", 0, compute)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New(10, time.Minute, 0)
	defer c.Close()

	boom := errors.New("boom")
	_, err := c.GetOrCompute(context.Background(), "key", "v1", 0, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.Len(), "failed computations must not be committed")
}

func TestGetOrComputeAbandonedCaller(t *testing.T) {
	c := New(10, time.Minute, 0)
	defer c.Close()

	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.GetOrCompute(ctx, "key", "v1", 0, func(context.Context) (any, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return "late", nil
	})
	require.ErrorIs(t, err, context.Canceled)

	// The detached computation still completes and commits its result.
	require.Eventually(t, func() bool {
		value, ok := c.Get("key", "v1")
		return ok && value == "late"
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(100, time.Minute, 0)
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("search:%d", i), i, "v1", 0)
	}
	c.Set("resource:spec", "spec", "v1", 0)

	dropped := c.InvalidatePrefix("search:")
	require.Equal(t, 5, dropped)
	require.Equal(t, 1, c.Len())

	c.InvalidateAll()
	require.Equal(t, 0, c.Len())
}

func TestBackgroundSweep(t *testing.T) {
	c := New(10, 5*time.Millisecond, 10*time.Millisecond)
	defer c.Close()

	c.Set("key", "value", "v1", 0)
	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond, "sweeper evicts expired entries without an access")
}
