package query

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Well-known request properties.
const (
	// PropSubject carries the caller identity.
	PropSubject = "subject"
	// PropGroups carries the caller's group memberships ([]string).
	PropGroups = "groups"
)

// Request is a Query plus request-scoped metadata. It is immutable: every
// With* method returns a new value and property maps are never shared.
type Request struct {
	id         string
	query      Query
	enterprise bool
	sourceIDs  []string
	properties map[string]any
}

// NewRequest builds a request with a fresh request ID.
func NewRequest(q Query, enterprise bool, sourceIDs []string, properties map[string]any) Request {
	return Request{
		id:         uuid.NewString(),
		query:      q,
		enterprise: enterprise,
		sourceIDs:  slices.Clone(sourceIDs),
		properties: maps.Clone(properties),
	}
}

// ID returns the request identifier shared by every per-source request derived from it.
func (r Request) ID() string { return r.id }

// Query returns the search specification.
func (r Request) Query() Query { return r.query }

// Enterprise reports whether every known source should be queried.
func (r Request) Enterprise() bool { return r.enterprise }

// SourceIDs returns the explicit source restriction (a copy).
func (r Request) SourceIDs() []string { return slices.Clone(r.sourceIDs) }

// Property returns a single request property.
func (r Request) Property(key string) (any, bool) {
	v, ok := r.properties[key]
	return v, ok
}

// Properties returns a copy of the property bag.
func (r Request) Properties() map[string]any { return maps.Clone(r.properties) }

// Groups returns the caller groups carried in PropGroups.
func (r Request) Groups() []string {
	switch g := r.properties[PropGroups].(type) {
	case []string:
		return slices.Clone(g)
	case []any:
		out := make([]string, 0, len(g))
		for _, v := range g {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// WithQuery returns a copy carrying a different query.
func (r Request) WithQuery(q Query) Request {
	r.query = q
	r.sourceIDs = slices.Clone(r.sourceIDs)
	r.properties = maps.Clone(r.properties)
	return r
}

// WithProperty returns a copy with one property set.
func (r Request) WithProperty(key string, value any) Request {
	props := maps.Clone(r.properties)
	if props == nil {
		props = make(map[string]any, 1)
	}
	props[key] = value
	r.properties = props
	r.sourceIDs = slices.Clone(r.sourceIDs)
	return r
}
