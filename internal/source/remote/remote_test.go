package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	fedcat "github.com/kailas-cloud/fedcat/pkg/sdk"
)

// --- Mocks ---

type mockClient struct {
	resp    *fedcat.QueryResponse
	err     error
	pingErr error
	last    fedcat.QueryRequest
}

func (m *mockClient) Query(_ context.Context, req fedcat.QueryRequest) (*fedcat.QueryResponse, error) {
	m.last = req
	return m.resp, m.err
}

func (m *mockClient) Ping(context.Context) error { return m.pingErr }

func request(t *testing.T, start, size int, sort query.Sort, timeout time.Duration) query.Request {
	t.Helper()
	q, err := query.New(query.Criteria{Text: "river", Attributes: map[string]string{"type": "image"}},
		start, size, sort, true, timeout)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return query.NewRequest(q, true, []string{"ignored"}, map[string]any{
		query.PropSubject: "alice",
		query.PropGroups:  []string{"admin"},
		"locale":          "en",
	})
}

// --- Tests ---

func TestQuery_MapsRequestAndRecords(t *testing.T) {
	dist := 3.5
	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &mockClient{resp: &fedcat.QueryResponse{
		Hits: 12,
		Results: []fedcat.Record{
			{ID: "1", Source: "local", Title: "Blue River", Relevance: 0.9, Distance: &dist, Modified: &mod},
			{ID: "2", Title: "Anonymous", Relevance: 0.1},
		},
	}}
	s := New("peer-eu", m)

	resp, err := s.Query(context.Background(), request(t, 1, 7, query.Sort{Field: "title"}, 2*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.last.Text != "river" || m.last.Attributes["type"] != "image" {
		t.Errorf("criteria not forwarded: %+v", m.last)
	}
	if m.last.Start != 1 || m.last.PageSize != 7 || !m.last.CountTotal {
		t.Errorf("paging not forwarded: %+v", m.last)
	}
	if m.last.Sort == nil || m.last.Sort.Field != "title" || m.last.Sort.Order != "asc" {
		t.Errorf("sort not forwarded: %+v", m.last.Sort)
	}
	if m.last.Enterprise || len(m.last.Sources) != 0 {
		t.Error("peer query must stay local to the peer")
	}
	if m.last.TimeoutMs <= 0 || m.last.TimeoutMs > 2000 {
		t.Errorf("unexpected timeout %d", m.last.TimeoutMs)
	}
	if m.last.Properties["locale"] != "en" {
		t.Errorf("properties not forwarded: %+v", m.last.Properties)
	}
	if _, ok := m.last.Properties[query.PropSubject]; ok {
		t.Errorf("subject must not reach the peer: %+v", m.last.Properties)
	}
	if _, ok := m.last.Properties[query.PropGroups]; ok {
		t.Errorf("groups must not reach the peer: %+v", m.last.Properties)
	}

	if resp.Hits != 12 || len(resp.Results) != 2 {
		t.Fatalf("unexpected response: hits=%d results=%d", resp.Hits, len(resp.Results))
	}
	r := resp.Results[0]
	if r.SourceID() != "peer-eu/local" {
		t.Errorf("SourceID = %q, want peer-eu/local", r.SourceID())
	}
	if d, ok := r.Distance(); !ok || d != dist {
		t.Errorf("Distance = %v, %v", d, ok)
	}
	if !r.Modified().Equal(mod) {
		t.Errorf("Modified = %v", r.Modified())
	}
	if resp.Results[1].SourceID() != "peer-eu" {
		t.Errorf("SourceID = %q, want peer-eu", resp.Results[1].SourceID())
	}
}

func TestQuery_UnboundedPageAsksPeerMax(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int
	}{
		{"default", 0, DefaultMaxPageSize},
		{"configured", 250, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockClient{resp: &fedcat.QueryResponse{}}
			s := New("peer", m).WithMaxPageSize(tt.max)

			if _, err := s.Query(context.Background(), request(t, 1, 0, query.Sort{}, 0)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.last.PageSize != tt.want {
				t.Errorf("PageSize = %d, want %d", m.last.PageSize, tt.want)
			}
		})
	}
}

func TestQuery_DeadlineBoundsTimeout(t *testing.T) {
	m := &mockClient{resp: &fedcat.QueryResponse{}}
	s := New("peer", m)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := s.Query(ctx, request(t, 1, 10, query.Sort{}, time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.last.TimeoutMs > 500 {
		t.Errorf("timeout %dms exceeds context deadline", m.last.TimeoutMs)
	}
}

func TestQuery_Error(t *testing.T) {
	m := &mockClient{err: errors.New("connection refused")}
	s := New("peer", m)

	if _, err := s.Query(context.Background(), request(t, 1, 10, query.Sort{}, 0)); err == nil {
		t.Fatal("expected error")
	}
}

func TestPing(t *testing.T) {
	s := New("peer", &mockClient{pingErr: errors.New("down")})
	if err := s.Ping(context.Background()); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestDial_AgainstHTTPPeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/query":
			_, _ = io.WriteString(w, `{"request_id":"x","hits":1,"results":[{"id":"9","source":"mem","relevance":1}]}`)
		case "/health":
			_, _ = io.WriteString(w, `{"status":"ok","checks":{}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := Dial("peer", srv.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	resp, err := s.Query(context.Background(), request(t, 1, 10, query.Sort{}, 0))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID() != "9" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

func TestDial_InvalidURL(t *testing.T) {
	if _, err := Dial("peer", "not a url"); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
