package dataset

import (
	"context"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sahtee/admin/pkg/adminsdk"
)

// fieldSeparator keeps a query from matching across two fields.
const fieldSeparator = "\x00"

type projection struct {
	generation uint64
	count      int
	text       []string
}

// Searcher runs case-insensitive substring search over cached datasets.
type Searcher struct {
	cache *Cache

	mu          sync.Mutex
	caser       cases.Caser // not safe for concurrent use; guarded by mu
	projections map[adminsdk.EntityType]*projection
}

// NewSearcher creates a Searcher that folds case using tag's rules.
func NewSearcher(cache *Cache, tag language.Tag) *Searcher {
	return &Searcher{
		cache:       cache,
		caser:       cases.Lower(tag),
		projections: make(map[adminsdk.EntityType]*projection),
	}
}

// Search loads entity's dataset if needed and returns the records whose
// search fields contain query. A blank query returns every record.
func (s *Searcher) Search(ctx context.Context, entity adminsdk.EntityType, query string) ([]adminsdk.Record, error) {
	records, gen, err := s.cache.load(ctx, entity)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return slices.Clone(records), nil
	}

	s.mu.Lock()
	p := s.projectionLocked(entity, records, gen)
	needle := s.caser.String(query)
	s.mu.Unlock()

	out := make([]adminsdk.Record, 0)
	for i, text := range p.text {
		if strings.Contains(text, needle) {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// projectionLocked returns the lowercased search text for records,
// rebuilding it only when the dataset changed. s.mu must be held.
func (s *Searcher) projectionLocked(entity adminsdk.EntityType, records []adminsdk.Record, gen uint64) *projection {
	if p, ok := s.projections[entity]; ok && p.generation == gen && p.count == len(records) {
		return p
	}

	fields := entity.SearchFields()
	text := make([]string, len(records))

	var b strings.Builder
	for i, rec := range records {
		b.Reset()
		for j, field := range fields {
			if j > 0 {
				b.WriteString(fieldSeparator)
			}
			b.WriteString(rec.String(field))
		}
		text[i] = s.caser.String(b.String())
	}

	p := &projection{generation: gen, count: len(records), text: text}
	s.projections[entity] = p
	return p
}
