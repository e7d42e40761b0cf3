package redisearch

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
)

func newTestSource(t *testing.T) (*Source, *mock.Client) {
	t.Helper()
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	return NewWithClient(Config{ID: "redis", Index: "idx:records", KeyPrefix: "rec:"}, c), c
}

func request(t *testing.T, c query.Criteria, start, size int, sort query.Sort) query.Request {
	t.Helper()
	q, err := query.New(c, start, size, sort, true, 0)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return query.NewRequest(q, false, nil, nil)
}

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	s, c := newTestSource(t)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	s, c := newTestSource(t)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{ID: "r", Index: "idx"}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without addrs, got %v", err)
	}
	if _, err := New(Config{ID: "r", Addrs: []string{"localhost:6379"}}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without index, got %v", err)
	}
}

// --- search.go tests ---

func TestQuery_Success(t *testing.T) {
	s, c := newTestSource(t)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(12),
			mock.RedisString("rec:1"),
			mock.RedisString("2.5"),
			mock.RedisArray(
				mock.RedisString("title"), mock.RedisString("Blue River"),
				mock.RedisString("modified"), mock.RedisString("1704067200000"),
				mock.RedisString("type"), mock.RedisString("image"),
			),
			mock.RedisString("rec:2"),
			mock.RedisString("1.5"),
			mock.RedisArray(mock.RedisString("title"), mock.RedisString("Green")),
		)))

	c2 := query.Criteria{Text: "blue river", Attributes: map[string]string{"type": "image"}}
	resp, err := s.Query(context.Background(), request(t, c2, 5, 3, query.Sort{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"FT.SEARCH", "idx:records", "blue river @type:{image}", "WITHSCORES",
		"LIMIT", "4", "3", "DIALECT", "2"}
	if !slices.Equal(got, want) {
		t.Errorf("command = %q, want %q", got, want)
	}

	if resp.Hits != 12 {
		t.Errorf("expected hits 12, got %d", resp.Hits)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	r := resp.Results[0]
	if r.ID() != "1" || r.SourceID() != "redis" || r.Title() != "Blue River" || r.Relevance() != 2.5 {
		t.Errorf("unexpected record: id=%s source=%s title=%s relevance=%v",
			r.ID(), r.SourceID(), r.Title(), r.Relevance())
	}
	if !r.Modified().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected modified: %v", r.Modified())
	}
	if _, ok := r.Attribute("title"); ok {
		t.Error("title should not be repeated as an attribute")
	}
	if v, _ := r.Attribute("type"); v != "image" {
		t.Errorf("expected attribute type=image, got %q", v)
	}
}

func TestQuery_SortAndUnboundedPage(t *testing.T) {
	s, c := newTestSource(t)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	resp, err := s.Query(context.Background(), request(t, query.Criteria{Text: "*"}, 1, 0, query.Sort{Field: "modified"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Hits != 0 || len(resp.Results) != 0 {
		t.Errorf("expected empty response, got %+v", resp)
	}

	want := []string{"FT.SEARCH", "idx:records", "*", "WITHSCORES",
		"SORTBY", "modified", "DESC", "LIMIT", "0", "10000", "DIALECT", "2"}
	if !slices.Equal(got, want) {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestQuery_DistanceUnsupported(t *testing.T) {
	s, _ := newTestSource(t)

	_, err := s.Query(context.Background(), request(t, query.Criteria{}, 1, 10, query.Sort{Field: "distance"}))
	if !errors.Is(err, domain.ErrUnsupportedQuery) {
		t.Fatalf("expected ErrUnsupportedQuery, got %v", err)
	}
}

func TestQuery_Error(t *testing.T) {
	s, c := newTestSource(t)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.ErrorResult(errors.New("connection reset")))

	if _, err := s.Query(context.Background(), request(t, query.Criteria{}, 1, 10, query.Sort{})); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildQuery_Escapes(t *testing.T) {
	got := buildQuery(query.Criteria{
		Text:       "foo-bar",
		Attributes: map[string]string{"region": "eu west", "kind": "a.b"},
	})
	want := `foo\-bar @kind:{a\.b} @region:{eu\ west}`
	if got != want {
		t.Errorf("buildQuery = %q, want %q", got, want)
	}
}

func TestParseModified(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"garbage", time.Time{}},
		{"1714979289000", ts},
		{"2024-05-06T07:08:09Z", ts},
	}
	for _, tc := range tests {
		if got := parseModified(tc.in); !got.Equal(tc.want) {
			t.Errorf("parseModified(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
