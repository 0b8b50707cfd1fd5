package dataset

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/sahtee/admin/pkg/httpx"
	"github.com/sahtee/admin/pkg/slogx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(f PageFetcher, pageSize int) *Cache {
	return New(f, Config{PageSize: pageSize, Logger: slogx.Discard()})
}

func ids(records []adminsdk.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

func TestCacheLoadPages(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(450)
	cache := newTestCache(f, 200)

	records, err := cache.Load(context.Background(), adminsdk.Doctor)
	require.NoError(t, err)
	require.Len(t, records, 450)
	require.Equal(t, 3, f.totalCalls())
	require.Equal(t, 1, f.callsFor(1))
	require.Equal(t, 1, f.callsFor(2))
	require.Equal(t, 1, f.callsFor(3))

	for i, rec := range records {
		require.Equal(t, i+1, mustAtoi(t, rec.ID()))
	}

	require.Equal(t, StateReady, cache.State(adminsdk.Doctor))
	require.EqualValues(t, 1, cache.Generation(adminsdk.Doctor))

	again, err := cache.Load(context.Background(), adminsdk.Doctor)
	require.NoError(t, err)
	require.Len(t, again, 450)
	require.Equal(t, 3, f.totalCalls())
}

func TestCacheBoundedConcurrency(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(2000)
	f.delay = 10 * time.Millisecond
	cache := New(f, Config{PageSize: 100, Concurrency: 4, Logger: slogx.Discard()})

	records, err := cache.Load(context.Background(), adminsdk.Nurse)
	require.NoError(t, err)
	require.Len(t, records, 2000)
	require.Equal(t, 20, f.totalCalls())
	require.LessOrEqual(t, f.peakConcurrency(), 4)
}

func TestCacheDeduplicatesOverlap(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(5)
	f.overlap = true
	cache := newTestCache(f, 2)

	records, err := cache.Load(context.Background(), adminsdk.User)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(records))
}

func TestCacheSharedLoad(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(450)
	f.gate = make(chan struct{})
	cache := newTestCache(f, 200)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]adminsdk.Record, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := cache.Load(context.Background(), adminsdk.Hospital)
			assert.NoError(t, err)
			results[i] = records
		}()
	}

	require.Eventually(t, func() bool { return cache.State(adminsdk.Hospital) == StateLoading }, time.Second, time.Millisecond)
	close(f.gate)
	wg.Wait()

	require.Equal(t, 3, f.totalCalls())
	for _, r := range results {
		require.Len(t, r, 450)
	}
}

func TestCacheFailureLeavesEmpty(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(450)
	f.failAt = 2
	cache := newTestCache(f, 200)

	_, err := cache.Load(context.Background(), adminsdk.Doctor)
	require.ErrorContains(t, err, "page 2")
	require.Equal(t, StateEmpty, cache.State(adminsdk.Doctor))
	require.Zero(t, cache.Generation(adminsdk.Doctor))

	_, ok := cache.Peek(adminsdk.Doctor)
	require.False(t, ok)

	f.failAt = 0
	records, err := cache.Load(context.Background(), adminsdk.Doctor)
	require.NoError(t, err)
	require.Len(t, records, 450)
}

func TestCacheReturnsCallerOwnedSlices(t *testing.T) {
	t.Parallel()

	cache := newTestCache(newFakeFetcher(5), 200)

	records, err := cache.Load(context.Background(), adminsdk.Hospital)
	require.NoError(t, err)
	records[0] = adminsdk.Record{"id": "999"}

	peeked, ok := cache.Peek(adminsdk.Hospital)
	require.True(t, ok)
	require.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(peeked))
	peeked[4] = nil

	again, err := cache.Load(context.Background(), adminsdk.Hospital)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(again))
}

func TestCacheCancellation(t *testing.T) {
	t.Parallel()

	t.Run("sole caller cancels the load", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher(450)
		f.gate = make(chan struct{})
		cache := newTestCache(f, 200)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := cache.Load(ctx, adminsdk.Doctor)
			done <- err
		}()

		require.Eventually(t, func() bool { return f.started.Load() >= 1 }, time.Second, time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Load did not return after cancellation")
		}

		require.Equal(t, StateEmpty, cache.State(adminsdk.Doctor))
		require.Zero(t, cache.Generation(adminsdk.Doctor))
	})

	t.Run("remaining caller keeps the load alive", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher(450)
		f.gate = make(chan struct{})
		cache := newTestCache(f, 200)

		ctx, cancel := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() {
			_, err := cache.Load(ctx, adminsdk.Doctor)
			first <- err
		}()
		second := make(chan []adminsdk.Record, 1)
		go func() {
			records, err := cache.Load(context.Background(), adminsdk.Doctor)
			assert.NoError(t, err)
			second <- records
		}()

		require.Eventually(t, func() bool {
			cache.mu.Lock()
			defer cache.mu.Unlock()
			e := cache.entries[adminsdk.Doctor]
			return e != nil && e.load != nil && e.load.refs == 2
		}, time.Second, time.Millisecond)

		cancel()
		require.ErrorIs(t, <-first, context.Canceled)

		close(f.gate)
		require.Len(t, <-second, 450)
		require.Equal(t, 1, f.callsFor(1))
	})
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	t.Run("ready entry drops to empty", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher(10)
		cache := newTestCache(f, 200)

		_, err := cache.Load(context.Background(), adminsdk.User)
		require.NoError(t, err)

		cache.Invalidate(adminsdk.User)
		require.Equal(t, StateEmpty, cache.State(adminsdk.User))

		_, err = cache.Load(context.Background(), adminsdk.User)
		require.NoError(t, err)
		require.Equal(t, 2, f.callsFor(1))
		require.EqualValues(t, 2, cache.Generation(adminsdk.User))
	})

	t.Run("in flight load cannot commit", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher(10)
		f.gate = make(chan struct{})
		cache := newTestCache(f, 200)

		done := make(chan []adminsdk.Record, 1)
		go func() {
			records, err := cache.Load(context.Background(), adminsdk.Nurse)
			assert.NoError(t, err)
			done <- records
		}()

		require.Eventually(t, func() bool { return f.started.Load() == 1 }, time.Second, time.Millisecond)
		cache.Invalidate(adminsdk.Nurse)
		close(f.gate)

		// The waiting caller restarts and gets data from a fresh load.
		require.Len(t, <-done, 10)
		require.Equal(t, 2, f.callsFor(1))
		require.EqualValues(t, 1, cache.Generation(adminsdk.Nurse))
	})

	t.Run("invalidate all", func(t *testing.T) {
		t.Parallel()

		cache := newTestCache(newFakeFetcher(3), 200)
		for _, e := range adminsdk.EntityTypes() {
			_, err := cache.Load(context.Background(), e)
			require.NoError(t, err)
		}

		cache.InvalidateAll()
		for _, e := range adminsdk.EntityTypes() {
			require.Equal(t, StateEmpty, cache.State(e))
		}
	})
}

func TestCacheLimiterGatesPages(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(300)
	cache := New(f, Config{
		PageSize: 100,
		Logger:   slogx.Discard(),
		Limiter: httpx.NewLimiter(httpx.RateLimitConfig{
			RequestsPerWindow: 100,
			Window:            time.Second,
			Burst:             1,
		}),
	})

	start := time.Now()
	records, err := cache.Load(context.Background(), adminsdk.Hospital)
	require.NoError(t, err)
	require.Len(t, records, 300)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestCacheRejectsUnknownEntity(t *testing.T) {
	t.Parallel()

	_, err := newTestCache(newFakeFetcher(1), 10).Load(context.Background(), adminsdk.EntityType("patient"))
	require.Error(t, err)
}
