package query

import (
	"fmt"
	"maps"
	"time"
)

// Query parameter limits.
const (
	// DefaultMaxStartIndex bounds how deep a caller can page into a federated result set.
	DefaultMaxStartIndex = 50000
	// MaxTextLength is the maximum allowed criteria text length.
	MaxTextLength = 4096
)

// Order is a sort direction.
type Order string

const (
	// Ascending sorts smallest first.
	Ascending Order = "asc"
	// Descending sorts largest first.
	Descending Order = "desc"
)

// IsValid reports whether the order is known.
func (o Order) IsValid() bool {
	return o == Ascending || o == Descending
}

// Sort names the field results are ordered by. The zero value means unsorted.
type Sort struct {
	Field string
	Order Order
}

// IsZero reports whether no sort was requested.
func (s Sort) IsZero() bool { return s.Field == "" }

// Criteria is what records must match. Sources interpret it; the federation core never does.
type Criteria struct {
	Text       string
	Attributes map[string]string
}

// Query is an immutable search specification.
type Query struct {
	criteria   Criteria
	start      int
	pageSize   int
	sort       Sort
	countTotal bool
	timeout    time.Duration
}

// New validates and normalizes query parameters.
// start < 1 becomes 1, pageSize 0 means unbounded, a negative timeout is rejected.
func New(
	criteria Criteria,
	start, pageSize int,
	sort Sort,
	countTotal bool,
	timeout time.Duration,
) (Query, error) {
	if len(criteria.Text) > MaxTextLength {
		return Query{}, fmt.Errorf("criteria text too long (max %d chars)", MaxTextLength)
	}
	if pageSize < 0 {
		return Query{}, fmt.Errorf("page size must not be negative, got %d", pageSize)
	}
	if timeout < 0 {
		return Query{}, fmt.Errorf("timeout must not be negative, got %s", timeout)
	}
	if start < 1 {
		start = 1
	}
	if !sort.IsZero() {
		if sort.Order == "" {
			sort.Order = defaultOrder(sort.Field)
		}
		if !sort.Order.IsValid() {
			return Query{}, fmt.Errorf("invalid sort order: %q", sort.Order)
		}
	}

	return Query{
		criteria:   Criteria{Text: criteria.Text, Attributes: maps.Clone(criteria.Attributes)},
		start:      start,
		pageSize:   pageSize,
		sort:       sort,
		countTotal: countTotal,
		timeout:    timeout,
	}, nil
}

// defaultOrder picks the natural direction of well-known sort fields.
func defaultOrder(field string) Order {
	switch field {
	case "relevance", "modified":
		return Descending
	default:
		return Ascending
	}
}

// Criteria returns the match criteria. The attribute map is a copy.
func (q Query) Criteria() Criteria {
	return Criteria{Text: q.criteria.Text, Attributes: maps.Clone(q.criteria.Attributes)}
}

// Text returns the free-text part of the criteria.
func (q Query) Text() string { return q.criteria.Text }

// Attribute returns a single attribute filter value.
func (q Query) Attribute(name string) (string, bool) {
	v, ok := q.criteria.Attributes[name]
	return v, ok
}

// Start returns the 1-based offset of the first requested record.
func (q Query) Start() int { return q.start }

// PageSize returns the maximum number of records requested (0 = unbounded).
func (q Query) PageSize() int { return q.pageSize }

// Sort returns the requested ordering.
func (q Query) Sort() Sort { return q.sort }

// CountTotal reports whether an exact total hit count was requested.
func (q Query) CountTotal() bool { return q.countTotal }

// Timeout returns the overall query timeout (0 = caller default).
func (q Query) Timeout() time.Duration { return q.timeout }

// End returns the 1-based index of the last requested record, or 0 when unbounded.
func (q Query) End() int {
	if q.pageSize == 0 {
		return 0
	}
	return q.start + q.pageSize - 1
}

// WithPage returns a copy with a different offset and page size.
func (q Query) WithPage(start, pageSize int) Query {
	if start < 1 {
		start = 1
	}
	if pageSize < 0 {
		pageSize = 0
	}
	q.start = start
	q.pageSize = pageSize
	return q
}

// WithTimeout returns a copy with a different timeout.
func (q Query) WithTimeout(timeout time.Duration) Query {
	if timeout < 0 {
		timeout = 0
	}
	q.timeout = timeout
	return q
}
