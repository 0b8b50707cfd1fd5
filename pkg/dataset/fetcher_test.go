package dataset

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sahtee/admin/pkg/adminsdk"
)

// fakeFetcher serves total records in pages, tracking calls and the peak
// number of concurrent requests.
type fakeFetcher struct {
	total   int
	delay   time.Duration
	failAt  int           // page that fails, 0 for none
	gate    chan struct{} // when set, every page waits for it to close
	overlap bool          // repeat the last record of a page at the start of the next

	mu       sync.Mutex
	calls    map[int]int
	inflight int
	peak     int
	started  atomic.Int32
}

func newFakeFetcher(total int) *fakeFetcher {
	return &fakeFetcher{total: total, calls: make(map[int]int)}
}

func (f *fakeFetcher) ListPage(ctx context.Context, entity adminsdk.EntityType, page, perPage int) (*adminsdk.PageResult, error) {
	f.started.Add(1)

	f.mu.Lock()
	f.calls[page]++
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if page == f.failAt {
		return nil, errors.New("backend exploded")
	}

	start := (page - 1) * perPage
	end := min(start+perPage, f.total)
	if f.overlap && page > 1 {
		start--
	}

	items := make([]adminsdk.Record, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		items = append(items, adminsdk.Record{
			"id":   strconv.Itoa(i + 1),
			"name": string(entity) + " " + strconv.Itoa(i+1),
		})
	}

	lastPage := (f.total + perPage - 1) / perPage
	return &adminsdk.PageResult{
		Items:       items,
		CurrentPage: page,
		LastPage:    max(lastPage, 1),
		PerPage:     perPage,
		Total:       f.total,
	}, nil
}

func (f *fakeFetcher) callsFor(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
