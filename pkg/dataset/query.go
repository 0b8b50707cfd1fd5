package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/sahtee/admin/pkg/adminsdk"
)

const (
	DefaultDebounce    = 350 * time.Millisecond
	DefaultWarmUpDelay = 800 * time.Millisecond
)

// Result is one delivered search.
type Result struct {
	Seq     uint64
	Query   string
	Records []adminsdk.Record
	Err     error
}

type QueryConfig struct {
	Debounce    time.Duration
	WarmUpDelay time.Duration // negative disables warm-up
}

// Query turns a stream of keystrokes into debounced searches. Only the
// latest input is ever delivered; a newer input cancels the search in
// flight.
type Query struct {
	searcher *Searcher
	entity   adminsdk.EntityType
	debounce time.Duration
	deliver  func(Result)
	ctx      context.Context

	mu       sync.Mutex
	seq      uint64
	timer    *time.Timer
	inflight context.CancelFunc
	warm     context.CancelFunc
	fired    bool
	closed   bool

	// deliverMu serializes delivery with the sequence check.
	deliverMu sync.Mutex
}

// NewQuery creates a Query bound to ctx. Results are passed to deliver from
// a background goroutine and must not call Close. A warm-up load starts after cfg.WarmUpDelay
// unless a search fires first.
func NewQuery(ctx context.Context, searcher *Searcher, entity adminsdk.EntityType, cfg QueryConfig, deliver func(Result)) *Query {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.WarmUpDelay == 0 {
		cfg.WarmUpDelay = DefaultWarmUpDelay
	}

	q := &Query{
		searcher: searcher,
		entity:   entity,
		debounce: cfg.Debounce,
		deliver:  deliver,
		ctx:      ctx,
	}

	if cfg.WarmUpDelay > 0 {
		warmCtx, cancel := context.WithCancel(ctx)
		q.warm = cancel
		go func() {
			defer cancel()
			_ = WarmUp(warmCtx, searcher.cache, entity, cfg.WarmUpDelay)
		}()
	}

	return q
}

// Set records new input. The search runs once input has been quiet for the
// debounce interval.
func (q *Query) Set(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.seq++
	seq := q.seq
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.debounce, func() { q.fire(seq, text) })
}

// Flush runs the pending input now instead of waiting out the debounce.
func (q *Query) Flush(text string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.seq++
	seq := q.seq
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()

	q.fire(seq, text)
}

func (q *Query) fire(seq uint64, text string) {
	q.mu.Lock()
	if q.closed || seq != q.seq {
		q.mu.Unlock()
		return
	}
	prev := q.inflight
	ctx, cancel := context.WithCancel(q.ctx)
	q.inflight = cancel
	warm := q.warm
	first := !q.fired
	q.fired = true
	q.mu.Unlock()

	// Hold the shared load before letting go of the superseded search or
	// the warm-up, otherwise it would be cancelled and restarted.
	unpin := q.searcher.cache.pin(ctx, q.entity)
	defer unpin()
	if prev != nil {
		prev()
	}
	if first && warm != nil {
		warm()
	}

	records, err := q.searcher.Search(ctx, q.entity, text)

	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()

	if !q.current(seq) {
		return
	}
	q.deliver(Result{Seq: seq, Query: text, Records: records, Err: err})
}

func (q *Query) current(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed && seq == q.seq
}

// Close stops pending and running searches and the warm-up. Nothing is
// delivered after Close returns.
func (q *Query) Close() {
	q.mu.Lock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
	}
	if q.inflight != nil {
		q.inflight()
	}
	if q.warm != nil {
		q.warm()
	}
	q.mu.Unlock()

	// Wait out a delivery that passed its check before we closed.
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()
}
