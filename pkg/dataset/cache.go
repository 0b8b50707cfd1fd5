package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/sahtee/admin/pkg/httpx"
)

const (
	DefaultPageSize    = 200
	DefaultConcurrency = 4

	// maxPages bounds a load against a nonsensical last_page.
	maxPages = 10_000
)

// State is where an entity's dataset is in its lifecycle.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// errDetached is returned to callers of a load that was invalidated while
// running. Load restarts on it.
var errDetached = errors.New("dataset: load invalidated")

// PageFetcher fetches one normalized page of a collection.
type PageFetcher interface {
	ListPage(ctx context.Context, entity adminsdk.EntityType, page, perPage int) (*adminsdk.PageResult, error)
}

type Config struct {
	PageSize    int
	Concurrency int

	// Limiter gates page requests per entity type. Nil means unlimited.
	Limiter *httpx.Limiter
	Logger  *slog.Logger
}

type entry struct {
	state      State
	records    []adminsdk.Record
	generation uint64
	load       *load
}

// load is one in-flight full-dataset fetch shared by every caller that
// asked for it while it ran.
type load struct {
	done     chan struct{}
	cancel   context.CancelFunc
	refs     int
	detached bool

	records    []adminsdk.Record
	generation uint64
	err        error
}

// Cache holds complete datasets per entity type, fetched page by page.
type Cache struct {
	fetcher PageFetcher
	cfg     Config

	mu      sync.Mutex
	entries map[adminsdk.EntityType]*entry
}

// New creates a Cache. Zero config values take the defaults.
func New(fetcher PageFetcher, cfg Config) *Cache {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Cache{
		fetcher: fetcher,
		cfg:     cfg,
		entries: make(map[adminsdk.EntityType]*entry),
	}
}

// entryLocked returns the entry for entity, creating it. c.mu must be held.
func (c *Cache) entryLocked(entity adminsdk.EntityType) *entry {
	e, ok := c.entries[entity]
	if !ok {
		e = &entry{state: StateEmpty}
		c.entries[entity] = e
	}
	return e
}

// Load returns every record of entity, fetching them if needed. Concurrent
// callers share one fetch. Cancelling ctx returns promptly; the fetch itself
// stops only when no caller is left waiting on it. The returned slice is the
// caller's own; the records in it are shared.
func (c *Cache) Load(ctx context.Context, entity adminsdk.EntityType) ([]adminsdk.Record, error) {
	records, _, err := c.load(ctx, entity)
	if err != nil {
		return nil, err
	}
	return slices.Clone(records), nil
}

func (c *Cache) load(ctx context.Context, entity adminsdk.EntityType) ([]adminsdk.Record, uint64, error) {
	if !entity.Valid() {
		return nil, 0, fmt.Errorf("dataset: unknown entity type %q", entity)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		c.mu.Lock()
		e := c.entryLocked(entity)
		if e.state == StateReady {
			records, gen := e.records, e.generation
			c.mu.Unlock()
			return records, gen, nil
		}

		l := e.load
		if l == nil {
			l = c.startLocked(ctx, entity, e)
		}
		l.refs++
		c.mu.Unlock()

		select {
		case <-l.done:
			c.release(entity, l)
			if errors.Is(l.err, errDetached) {
				continue
			}
			return l.records, l.generation, l.err
		case <-ctx.Done():
			c.release(entity, l)
			return nil, 0, ctx.Err()
		}
	}
}

// startLocked begins a load for e. c.mu must be held.
func (c *Cache) startLocked(ctx context.Context, entity adminsdk.EntityType, e *entry) *load {
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &load{done: make(chan struct{}), cancel: cancel}

	e.state = StateLoading
	e.load = l

	go c.run(loadCtx, entity, l)
	return l
}

// pin registers interest in entity's load without waiting for it, so the
// load survives other callers leaving. The returned func releases it.
func (c *Cache) pin(ctx context.Context, entity adminsdk.EntityType) func() {
	if !entity.Valid() || ctx.Err() != nil {
		return func() {}
	}

	c.mu.Lock()
	e := c.entryLocked(entity)
	if e.state == StateReady {
		c.mu.Unlock()
		return func() {}
	}
	l := e.load
	if l == nil {
		l = c.startLocked(ctx, entity, e)
	}
	l.refs++
	c.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { c.release(entity, l) }) }
}

// release drops one caller's interest in l. The last caller out cancels a
// load that is still running and returns the entry to empty.
func (c *Cache) release(entity adminsdk.EntityType, l *load) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l.refs--
	if l.refs > 0 {
		return
	}

	select {
	case <-l.done:
		return
	default:
	}

	l.cancel()
	if e := c.entries[entity]; e != nil && e.load == l {
		e.load = nil
		e.state = StateEmpty
		l.detached = true
	}
}

func (c *Cache) run(ctx context.Context, entity adminsdk.EntityType, l *load) {
	defer l.cancel()

	start := time.Now()
	records, err := c.fetchAll(ctx, entity)

	c.mu.Lock()
	e := c.entryLocked(entity)
	switch {
	case l.detached:
		err = errDetached
		records = nil
	case err != nil:
		e.state = StateEmpty
		e.records = nil
		e.load = nil
		records = nil
	default:
		e.state = StateReady
		e.records = records
		e.generation++
		e.load = nil
		l.generation = e.generation
	}
	l.records, l.err = records, err
	c.mu.Unlock()

	close(l.done)

	logger := c.cfg.Logger.With("entity", string(entity), "duration_ms", time.Since(start).Milliseconds())
	switch {
	case err == nil:
		logger.Debug("dataset loaded", "records", len(records))
	case errors.Is(err, errDetached), errors.Is(err, context.Canceled):
		logger.Debug("dataset load abandoned")
	default:
		logger.Warn("dataset load failed", "error", err)
	}
}

// fetchAll reads page 1, then the remaining pages with bounded
// concurrency, and assembles them in page order.
func (c *Cache) fetchAll(ctx context.Context, entity adminsdk.EntityType) ([]adminsdk.Record, error) {
	first, err := c.fetchPage(ctx, entity, 1)
	if err != nil {
		return nil, fmt.Errorf("page 1: %w", err)
	}

	pages := first.LastPage
	if pages < 1 && first.Total > 0 && first.PerPage > 0 {
		pages = (first.Total + first.PerPage - 1) / first.PerPage
	}
	if pages < 1 {
		pages = 1
	}
	if pages > maxPages {
		return nil, fmt.Errorf("dataset: %s reports %d pages, limit is %d", entity, pages, maxPages)
	}

	results := make([][]adminsdk.Record, pages)
	results[0] = first.Items

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for page := 2; page <= pages; page++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := c.fetchPage(gctx, entity, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			results[page-1] = res.Items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return assemble(results), nil
}

func (c *Cache) fetchPage(ctx context.Context, entity adminsdk.EntityType, page int) (*adminsdk.PageResult, error) {
	if c.cfg.Limiter != nil {
		for {
			ok, wait := c.cfg.Limiter.Allow(string(entity))
			if ok {
				break
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return c.fetcher.ListPage(ctx, entity, page, c.cfg.PageSize)
}

// assemble concatenates pages in order, dropping records whose id was
// already seen. Pages can overlap when rows shift during a load.
func assemble(pages [][]adminsdk.Record) []adminsdk.Record {
	n := 0
	for _, p := range pages {
		n += len(p)
	}

	out := make([]adminsdk.Record, 0, n)
	seen := make(map[string]struct{}, n)
	for _, p := range pages {
		for _, rec := range p {
			if id := rec.ID(); id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			out = append(out, rec)
		}
	}
	return out
}

// State reports the lifecycle state of entity's dataset.
func (c *Cache) State(entity adminsdk.EntityType) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[entity]; ok {
		return e.state
	}
	return StateEmpty
}

// Generation counts committed loads of entity.
func (c *Cache) Generation(entity adminsdk.EntityType) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[entity]; ok {
		return e.generation
	}
	return 0
}

// Peek returns the committed records without loading.
func (c *Cache) Peek(entity adminsdk.EntityType) ([]adminsdk.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[entity]; ok && e.state == StateReady {
		return slices.Clone(e.records), true
	}
	return nil, false
}

// Invalidate drops entity's dataset. A load in flight is cancelled and can
// no longer commit; its callers transparently start a fresh one.
func (c *Cache) Invalidate(entity adminsdk.EntityType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[entity]; ok {
		c.invalidateLocked(e)
	}
}

// InvalidateAll drops every dataset.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		c.invalidateLocked(e)
	}
}

func (c *Cache) invalidateLocked(e *entry) {
	if e.load != nil {
		e.load.detached = true
		e.load.cancel()
		e.load = nil
	}
	e.state = StateEmpty
	e.records = nil
}
