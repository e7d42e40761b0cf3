package result

import (
	"maps"
	"time"
)

// Result is a single matched catalog record.
type Result struct {
	id         string
	sourceID   string
	title      string
	attributes map[string]string
	relevance  float64
	distance   *float64
	modified   time.Time
}

// New creates a result.
func New(id, sourceID, title string, attributes map[string]string, relevance float64) Result {
	return Result{
		id: id, sourceID: sourceID, title: title,
		attributes: attributes, relevance: relevance,
	}
}

// ID returns the record identifier (unique within its source).
func (r *Result) ID() string { return r.id }

// SourceID returns the identifier of the source that produced the record.
func (r *Result) SourceID() string { return r.sourceID }

// Title returns the record title.
func (r *Result) Title() string { return r.title }

// Attributes returns the record metadata.
func (r *Result) Attributes() map[string]string { return r.attributes }

// Attribute returns a single metadata value.
func (r *Result) Attribute(name string) (string, bool) {
	v, ok := r.attributes[name]
	return v, ok
}

// Relevance returns the source-assigned relevance score.
func (r *Result) Relevance() float64 { return r.relevance }

// Distance returns the source-assigned distance, if any.
func (r *Result) Distance() (float64, bool) {
	if r.distance == nil {
		return 0, false
	}
	return *r.distance, true
}

// Modified returns the record modification time.
func (r *Result) Modified() time.Time { return r.modified }

// WithDistance returns a copy with a distance set.
func (r Result) WithDistance(d float64) Result {
	r.distance = &d
	return r
}

// WithModified returns a copy with a modification time set.
func (r Result) WithModified(t time.Time) Result {
	r.modified = t
	return r
}

// WithRelevance returns a copy with a different relevance score.
func (r Result) WithRelevance(relevance float64) Result {
	r.relevance = relevance
	return r
}

// WithSource returns a copy stamped with a source ID.
func (r Result) WithSource(sourceID string) Result {
	r.sourceID = sourceID
	return r
}

// WithoutAttributes returns a copy with the named attributes removed.
func (r Result) WithoutAttributes(names ...string) Result {
	if len(r.attributes) == 0 || len(names) == 0 {
		return r
	}
	attrs := maps.Clone(r.attributes)
	for _, n := range names {
		delete(attrs, n)
	}
	r.attributes = attrs
	return r
}

// Response is what exactly one source returned for exactly one query.
type Response struct {
	Results []Result
	Hits    int64
}
