// Package memory is a catalog source over a fixed in-process record set.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/source"
)

// Relevance scores for in-memory matches.
const (
	titleMatchScore     = 1.0
	attributeMatchScore = 0.5
)

// Source answers queries from records held in memory.
type Source struct {
	id string

	mu      sync.RWMutex
	records []result.Result
}

// New creates a memory source. Records are stamped with id.
func New(id string, records ...result.Result) *Source {
	s := &Source{id: id}
	s.Add(records...)
	return s
}

// ID returns the source identifier.
func (s *Source) ID() string { return s.id }

// Add appends records to the source.
func (s *Source) Add(records ...result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records = append(s.records, r.WithSource(s.id))
	}
}

// Len returns the number of records held.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Query matches text against titles and attribute values, applies attribute
// filters and returns the requested page in sort order.
func (s *Source) Query(ctx context.Context, req query.Request) (result.Response, error) {
	if err := ctx.Err(); err != nil {
		return result.Response{}, err
	}
	q := req.Query()
	filters := q.Criteria().Attributes

	s.mu.RLock()
	matched := make([]result.Result, 0, len(s.records))
	for _, r := range s.records {
		if !source.MatchAttributes(filters, r.Attributes()) {
			continue
		}
		score, ok := score(q.Text(), &r)
		if !ok {
			continue
		}
		matched = append(matched, rescore(r, score))
	}
	s.mu.RUnlock()

	cmp := result.ForSort(q.Sort())
	slices.SortStableFunc(matched, func(a, b result.Result) int { return cmp(&a, &b) })

	from, to := source.Window(len(matched), q.Start(), q.PageSize())
	return result.Response{
		Results: slices.Clone(matched[from:to]),
		Hits:    int64(len(matched)),
	}, nil
}

func score(text string, r *result.Result) (float64, bool) {
	if source.MatchText(text, r.Title()) {
		return titleMatchScore, true
	}
	values := make([]string, 0, len(r.Attributes()))
	for _, v := range r.Attributes() {
		values = append(values, v)
	}
	if source.MatchText(text, values...) {
		return attributeMatchScore, true
	}
	return 0, false
}

func rescore(r result.Result, relevance float64) result.Result {
	out := result.New(r.ID(), r.SourceID(), r.Title(), r.Attributes(), relevance).WithModified(r.Modified())
	if d, ok := r.Distance(); ok {
		out = out.WithDistance(d)
	}
	return out
}
