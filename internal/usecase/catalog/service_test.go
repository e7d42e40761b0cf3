package catalog

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/stream"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

// --- Mocks ---

type stubSource string

func (s stubSource) ID() string { return string(s) }

func (stubSource) Query(context.Context, query.Request) (result.Response, error) {
	return result.Response{}, nil
}

type mockFederator struct {
	sources []string
	err     error
}

func (m *mockFederator) Federate(
	_ context.Context, sources []federation.Source, req query.Request,
) (*federation.Response, error) {
	m.sources = m.sources[:0]
	for _, s := range sources {
		m.sources = append(m.sources, s.ID())
	}
	if m.err != nil {
		return nil, m.err
	}
	s := stream.New()
	s.CloseAndSetHits(0)
	return federation.NewResponse(req, s), nil
}

func newCatalog(t *testing.T, fed Federator) *Service {
	t.Helper()
	svc := New(fed, nil)
	for _, e := range []Entry{
		{Source: stubSource("books"), Kind: "memory"},
		{Source: stubSource("peer"), Kind: "remote", Remote: true},
		{Source: stubSource("files"), Kind: "s3", Groups: []string{"ops"}},
	} {
		if err := svc.Register(e); err != nil {
			t.Fatalf("Register(%s): %v", e.Source.ID(), err)
		}
	}
	return svc
}

func sourceIDs(sources []federation.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.ID()
	}
	return out
}

// --- Tests ---

func TestRegister_Rejects(t *testing.T) {
	svc := New(&mockFederator{}, nil)
	if err := svc.Register(Entry{Source: stubSource("a")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		entry Entry
	}{
		{"nil source", Entry{}},
		{"empty id", Entry{Source: stubSource("")}},
		{"duplicate id", Entry{Source: stubSource("a")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Register(tt.entry); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	svc := newCatalog(t, &mockFederator{})

	tests := []struct {
		name       string
		enterprise bool
		ids        []string
		want       []string
	}{
		{"default is local only", false, nil, []string{"books", "files"}},
		{"enterprise is everything", true, nil, []string{"books", "peer", "files"}},
		{"enterprise ignores ids", true, []string{"books"}, []string{"books", "peer", "files"}},
		{"explicit ids in request order", false, []string{"peer", "books"}, []string{"peer", "books"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := query.NewRequest(query.Query{}, tt.enterprise, tt.ids, nil)
			got, err := svc.Select(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ids := sourceIDs(got); !slices.Equal(ids, tt.want) {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestSelect_UnknownSource(t *testing.T) {
	svc := newCatalog(t, &mockFederator{})
	req := query.NewRequest(query.Query{}, false, []string{"books", "nope"}, nil)
	if _, err := svc.Select(req); !errors.Is(err, domain.ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestQuery_Delegates(t *testing.T) {
	fed := &mockFederator{}
	svc := newCatalog(t, fed)

	req := query.NewRequest(query.Query{}, false, []string{"files"}, nil)
	resp, err := svc.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Request().ID() != req.ID() {
		t.Error("response should answer the given request")
	}
	if !slices.Equal(fed.sources, []string{"files"}) {
		t.Errorf("federated sources = %v, want [files]", fed.sources)
	}
}

func TestQuery_UnknownSourceSkipsFederation(t *testing.T) {
	fed := &mockFederator{sources: []string{"untouched"}}
	svc := newCatalog(t, fed)

	req := query.NewRequest(query.Query{}, false, []string{"ghost"}, nil)
	if _, err := svc.Query(context.Background(), req); !errors.Is(err, domain.ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
	if !slices.Equal(fed.sources, []string{"untouched"}) {
		t.Error("federator should not be called")
	}
}

func TestQuery_AbortPropagates(t *testing.T) {
	svc := newCatalog(t, &mockFederator{err: domain.ErrProcessingAborted})
	req := query.NewRequest(query.Query{}, true, nil, nil)
	if _, err := svc.Query(context.Background(), req); !errors.Is(err, domain.ErrProcessingAborted) {
		t.Fatalf("expected ErrProcessingAborted, got %v", err)
	}
}

func TestList(t *testing.T) {
	svc := newCatalog(t, &mockFederator{})
	list := svc.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(list))
	}
	if list[1].ID != "peer" || !list[1].Remote || list[1].Kind != "remote" {
		t.Errorf("unexpected entry: %+v", list[1])
	}
	if !slices.Equal(list[2].Groups, []string{"ops"}) {
		t.Errorf("groups = %v, want [ops]", list[2].Groups)
	}
}
