package result

import (
	"cmp"
	"strings"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
)

// Compare orders two results; negative means a sorts before b.
type Compare func(a, b *Result) int

// ByRelevance orders by relevance, highest first.
func ByRelevance(a, b *Result) int {
	return cmp.Compare(b.relevance, a.relevance)
}

// ByDistance orders by distance, nearest first. Results without a distance sort last.
func ByDistance(a, b *Result) int {
	da, okA := a.Distance()
	db, okB := b.Distance()
	switch {
	case okA && okB:
		return cmp.Compare(da, db)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return 0
	}
}

// ByModified orders by modification time, oldest first.
func ByModified(a, b *Result) int {
	return a.modified.Compare(b.modified)
}

// ByTitle orders by title, case-insensitively.
func ByTitle(a, b *Result) int {
	return strings.Compare(strings.ToLower(a.title), strings.ToLower(b.title))
}

// ByAttribute orders by a metadata attribute. Records missing it sort last.
func ByAttribute(name string) Compare {
	return func(a, b *Result) int {
		va, okA := a.attributes[name]
		vb, okB := b.attributes[name]
		switch {
		case okA && okB:
			return strings.Compare(va, vb)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	}
}

// Reverse inverts an ordering.
func Reverse(c Compare) Compare {
	return func(a, b *Result) int { return c(b, a) }
}

// ForSort maps a query sort to a comparator. Unsorted queries order by relevance.
func ForSort(s query.Sort) Compare {
	var c Compare
	switch s.Field {
	case "", "relevance":
		// ByRelevance is already descending.
		if s.Order == query.Ascending {
			return Reverse(ByRelevance)
		}
		return ByRelevance
	case "distance":
		c = ByDistance
	case "modified":
		c = ByModified
	case "title":
		c = ByTitle
	default:
		c = ByAttribute(s.Field)
	}
	if s.Order == query.Descending {
		return Reverse(c)
	}
	return c
}
