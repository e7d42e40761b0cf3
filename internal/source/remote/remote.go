// Package remote is a catalog source that forwards queries to a peer fedcat node.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	fedcat "github.com/kailas-cloud/fedcat/pkg/sdk"
)

// Client is the subset of the fedcat SDK the source needs.
type Client interface {
	Query(ctx context.Context, req fedcat.QueryRequest) (*fedcat.QueryResponse, error)
	Ping(ctx context.Context) error
}

// DefaultMaxPageSize matches the default max_page_size of a fedcat node.
const DefaultMaxPageSize = 1000

// Source queries the local sources of a peer node.
type Source struct {
	id          string
	client      Client
	maxPageSize int
}

// New wraps a peer client.
func New(id string, client Client) *Source {
	return &Source{id: id, client: client, maxPageSize: DefaultMaxPageSize}
}

// WithMaxPageSize sets the peer's max_page_size. Unbounded per-source pages
// are requested at this size, since a peer turns page size 0 into its default.
func (s *Source) WithMaxPageSize(n int) *Source {
	if n > 0 {
		s.maxPageSize = n
	}
	return s
}

// Dial builds a peer source for the node at url.
func Dial(id, url string, opts ...fedcat.Option) (*Source, error) {
	c, err := fedcat.New(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: remote source %s: %w", domain.ErrInvalidConfig, id, err)
	}
	return New(id, c), nil
}

// ID returns the source identifier.
func (s *Source) ID() string { return s.id }

// Ping checks the peer is reachable and healthy.
func (s *Source) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: peer %s: %w", domain.ErrSourceUnavailable, s.id, err)
	}
	return nil
}

// Query forwards the request. The peer answers from its own local sources
// only, so peers that list each other never loop. Caller identity is not
// forwarded: the peer binds identity to this node's API key.
func (s *Source) Query(ctx context.Context, req query.Request) (result.Response, error) {
	resp, err := s.client.Query(ctx, s.toWire(ctx, req))
	if err != nil {
		return result.Response{}, fmt.Errorf("peer %s: %w", s.id, err)
	}

	out := make([]result.Result, 0, len(resp.Results))
	for _, rec := range resp.Results {
		out = append(out, s.fromWire(rec))
	}
	return result.Response{Results: out, Hits: resp.Hits}, nil
}

func (s *Source) toWire(ctx context.Context, req query.Request) fedcat.QueryRequest {
	q := req.Query()
	pageSize := q.PageSize()
	if pageSize == 0 {
		pageSize = s.maxPageSize
	}
	props := req.Properties()
	delete(props, query.PropSubject)
	delete(props, query.PropGroups)
	if len(props) == 0 {
		props = nil
	}
	w := fedcat.QueryRequest{
		Text:       q.Text(),
		Attributes: q.Criteria().Attributes,
		Start:      q.Start(),
		PageSize:   pageSize,
		CountTotal: q.CountTotal(),
		Properties: props,
	}
	if sort := q.Sort(); !sort.IsZero() {
		w.Sort = &fedcat.Sort{Field: sort.Field, Order: string(sort.Order)}
	}

	timeout := q.Timeout()
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout > 0 {
		w.TimeoutMs = max(timeout.Milliseconds(), 1)
	}
	return w
}

// fromWire maps a peer record; its source becomes "<peer>/<peer source>".
func (s *Source) fromWire(rec fedcat.Record) result.Result {
	sourceID := s.id
	if rec.Source != "" {
		sourceID = s.id + "/" + rec.Source
	}
	r := result.New(rec.ID, sourceID, rec.Title, rec.Attributes, rec.Relevance)
	if rec.Distance != nil {
		r = r.WithDistance(*rec.Distance)
	}
	if rec.Modified != nil {
		r = r.WithModified(*rec.Modified)
	}
	return r
}
