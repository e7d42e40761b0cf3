package federation

import (
	"slices"

	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/stream"
)

// Merger moves resolved source batches into a raw stream, keeping at most the
// per-source page size of records (0 = no limit) since no source was asked for more.
// Add is called once per successful source, Flush once after all sources resolved.
type Merger interface {
	Add(sourceID string, results []result.Result)
	Flush()
}

// MergePolicy creates a Merger for one federated query.
type MergePolicy interface {
	NewMerger(raw *stream.Stream, limit int) Merger
}

// ArrivalOrder pushes each source's batch as soon as the source resolves.
// Batches never interleave; sources appear in completion order.
type ArrivalOrder struct{}

// NewMerger implements MergePolicy.
func (ArrivalOrder) NewMerger(raw *stream.Stream, limit int) Merger {
	return &arrivalMerger{raw: raw, limit: limit}
}

type arrivalMerger struct {
	raw    *stream.Stream
	limit  int
	pushed int
}

func (m *arrivalMerger) Add(_ string, results []result.Result) {
	if m.limit > 0 {
		room := m.limit - m.pushed
		if room <= 0 {
			return
		}
		if len(results) > room {
			results = results[:room]
		}
	}
	m.raw.PushAll(results)
	m.pushed += len(results)
}

func (m *arrivalMerger) Flush() {}

// OrderedMerge holds every batch until all sources resolve, then flushes in comparator order.
type OrderedMerge struct {
	Compare result.Compare
}

// OrderedBy returns an ordered merge policy.
func OrderedBy(c result.Compare) OrderedMerge {
	return OrderedMerge{Compare: c}
}

// NewMerger implements MergePolicy.
func (p OrderedMerge) NewMerger(raw *stream.Stream, limit int) Merger {
	c := p.Compare
	if c == nil {
		c = result.ByRelevance
	}
	return &orderedMerger{raw: raw, compare: c, limit: limit}
}

type orderedMerger struct {
	raw     *stream.Stream
	compare result.Compare
	limit   int
	pending []result.Result
}

func (m *orderedMerger) Add(_ string, results []result.Result) {
	m.pending = append(m.pending, results...)
}

func (m *orderedMerger) Flush() {
	// Stable keeps each source's native order among equal keys.
	slices.SortStableFunc(m.pending, func(a, b result.Result) int {
		return m.compare(&a, &b)
	})
	if m.limit > 0 && len(m.pending) > m.limit {
		m.pending = m.pending[:m.limit]
	}
	m.raw.PushAll(m.pending)
	m.pending = nil
}
