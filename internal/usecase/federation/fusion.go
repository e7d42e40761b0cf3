package federation

import (
	"slices"

	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/stream"
)

// DefaultFusionK is the Reciprocal Rank Fusion constant (Cormack et al. 2009).
const DefaultFusionK = 60

// RankFusion merges sources by Reciprocal Rank Fusion once all of them resolve.
// score(r) = sum of 1/(K + rank_s(r)) over every source s that returned r,
// where records are matched by ID. A record returned by several sources is
// kept once, as delivered by the first source to resolve, with the fused score
// as its relevance. Hit totals are not adjusted for such duplicates.
type RankFusion struct {
	K int
}

// NewMerger implements MergePolicy.
func (p RankFusion) NewMerger(raw *stream.Stream, limit int) Merger {
	k := p.K
	if k <= 0 {
		k = DefaultFusionK
	}
	return &fusionMerger{raw: raw, k: k, limit: limit, byID: make(map[string]int)}
}

type fused struct {
	res   result.Result
	score float64
}

type fusionMerger struct {
	raw    *stream.Stream
	k      int
	limit  int
	merged []fused
	byID   map[string]int
}

func (m *fusionMerger) Add(_ string, results []result.Result) {
	for rank, r := range results {
		s := 1.0 / float64(m.k+rank+1)
		if i, ok := m.byID[r.ID()]; ok {
			m.merged[i].score += s
			continue
		}
		m.byID[r.ID()] = len(m.merged)
		m.merged = append(m.merged, fused{res: r, score: s})
	}
}

func (m *fusionMerger) Flush() {
	// Stable: equal scores keep first-seen order.
	slices.SortStableFunc(m.merged, func(a, b fused) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})
	if m.limit > 0 && len(m.merged) > m.limit {
		m.merged = m.merged[:m.limit]
	}

	out := make([]result.Result, len(m.merged))
	for i, f := range m.merged {
		out[i] = f.res.WithRelevance(f.score)
	}
	m.raw.PushAll(out)
	m.merged, m.byID = nil, nil
}
