package dataset

import (
	"context"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/stretchr/testify/require"
)

func collect() (chan Result, func(Result)) {
	ch := make(chan Result, 16)
	return ch, func(r Result) { ch <- r }
}

func TestQueryDebounce(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(30)
	cache := newTestCache(f, 200)
	results, deliver := collect()

	q := NewQuery(context.Background(), NewSearcher(cache, language.Und), adminsdk.Doctor,
		QueryConfig{Debounce: 30 * time.Millisecond, WarmUpDelay: -1}, deliver)
	defer q.Close()

	q.Set("d")
	q.Set("doctor 1")
	q.Set("doctor 12")

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		require.Equal(t, "doctor 12", r.Query)
		require.EqualValues(t, 3, r.Seq)
		require.Equal(t, []string{"12"}, ids(r.Records))
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}

	select {
	case r := <-results:
		t.Fatalf("unexpected extra delivery for %q", r.Query)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQuerySupersededSearchNeverDelivers(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(30)
	f.gate = make(chan struct{})
	cache := newTestCache(f, 200)
	results, deliver := collect()

	q := NewQuery(context.Background(), NewSearcher(cache, language.Und), adminsdk.Doctor,
		QueryConfig{Debounce: 10 * time.Millisecond, WarmUpDelay: -1}, deliver)
	defer q.Close()

	q.Set("doctor 1")
	require.Eventually(t, func() bool { return f.started.Load() == 1 }, time.Second, time.Millisecond)

	q.Set("doctor 2")
	time.Sleep(50 * time.Millisecond)
	close(f.gate)

	select {
	case r := <-results:
		require.Equal(t, "doctor 2", r.Query)
		require.Contains(t, ids(r.Records), "2")
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}

	select {
	case r := <-results:
		t.Fatalf("superseded search delivered %q", r.Query)
	case <-time.After(100 * time.Millisecond):
	}

	// The superseded search let go of the load without restarting it.
	require.Equal(t, 1, f.callsFor(1))
}

func TestQueryClose(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(5)
	cache := newTestCache(f, 200)
	results, deliver := collect()

	q := NewQuery(context.Background(), NewSearcher(cache, language.Und), adminsdk.User,
		QueryConfig{Debounce: 20 * time.Millisecond, WarmUpDelay: -1}, deliver)

	q.Set("user")
	q.Close()
	q.Set("user 1")

	select {
	case r := <-results:
		t.Fatalf("closed query delivered %q", r.Query)
	case <-time.After(100 * time.Millisecond):
	}
	require.Zero(t, f.totalCalls())
}

func TestQueryWarmUp(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(5)
	cache := newTestCache(f, 200)
	_, deliver := collect()

	q := NewQuery(context.Background(), NewSearcher(cache, language.Und), adminsdk.Hospital,
		QueryConfig{WarmUpDelay: 10 * time.Millisecond}, deliver)
	defer q.Close()

	require.Eventually(t, func() bool { return cache.State(adminsdk.Hospital) == StateReady }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, f.totalCalls())
}

func TestWarmUp(t *testing.T) {
	t.Parallel()

	t.Run("cancelled before the delay skips the load", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher(5)
		cache := newTestCache(f, 200)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.ErrorIs(t, WarmUp(ctx, cache, adminsdk.Nurse, time.Hour), context.Canceled)
		require.Zero(t, f.totalCalls())
	})

	t.Run("ready dataset is left alone", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher(5)
		cache := newTestCache(f, 200)
		_, err := cache.Load(context.Background(), adminsdk.Nurse)
		require.NoError(t, err)

		require.NoError(t, WarmUp(context.Background(), cache, adminsdk.Nurse, time.Millisecond))
		require.Equal(t, 1, f.totalCalls())
	})

	t.Run("joins a load in flight", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher(5)
		f.gate = make(chan struct{})
		cache := newTestCache(f, 200)

		go func() { _, _ = cache.Load(context.Background(), adminsdk.Nurse) }()
		require.Eventually(t, func() bool { return f.started.Load() == 1 }, time.Second, time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- WarmUp(context.Background(), cache, adminsdk.Nurse, time.Millisecond) }()

		time.Sleep(20 * time.Millisecond)
		close(f.gate)
		require.NoError(t, <-done)
		require.Equal(t, 1, f.totalCalls())
	})
}
