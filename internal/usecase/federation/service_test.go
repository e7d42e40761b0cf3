package federation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/executor"
	"github.com/kailas-cloud/fedcat/internal/stream"
)

// --- Mocks ---

type goSubmitter struct{}

func (goSubmitter) Submit(task func()) error {
	go task()
	return nil
}

type refusingSubmitter struct{}

func (refusingSubmitter) Submit(func()) error {
	return errors.New("pool closed")
}

type mockSource struct {
	id      string
	records []result.Result
	hits    int64
	err     error
	block   bool
	delay   time.Duration

	mu    sync.Mutex
	calls []query.Request
}

func (m *mockSource) ID() string { return m.id }

func (m *mockSource) Query(ctx context.Context, req query.Request) (result.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return result.Response{}, ctx.Err()
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return result.Response{}, ctx.Err()
		}
	}
	if m.err != nil {
		return result.Response{}, m.err
	}

	q := req.Query()
	from := min(q.Start()-1, len(m.records))
	to := len(m.records)
	if q.PageSize() > 0 {
		to = min(from+q.PageSize(), to)
	}
	hits := m.hits
	if hits == 0 {
		hits = int64(len(m.records))
	}
	return result.Response{Results: m.records[from:to], Hits: hits}, nil
}

func (m *mockSource) Calls() []query.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]query.Request(nil), m.calls...)
}

func sourceWith(id string, n int) *mockSource {
	recs := make([]result.Result, n)
	for i := range recs {
		recs[i] = result.New(fmt.Sprintf("%s%d", id, i+1), "", "", nil, 0)
	}
	return &mockSource{id: id, records: recs}
}

func newRequest(t *testing.T, start, pageSize int) query.Request {
	t.Helper()
	q, err := query.New(query.Criteria{Text: "*"}, start, pageSize, query.Sort{}, true, 0)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return query.NewRequest(q, false, nil, nil)
}

func drainResponse(t *testing.T, resp *Response) []result.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := stream.Drain(ctx, resp)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	return out
}

// --- Tests ---

func TestFederate_FirstPageSkipsCorrection(t *testing.T) {
	a, b := sourceWith("a", 20), sourceWith("b", 20)
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{a, b}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resp.Reader().(*stream.Stream); !ok {
		t.Fatalf("first page should read the raw stream, got %T", resp.Reader())
	}

	got := drainResponse(t, resp)
	if len(got) != 10 {
		t.Errorf("expected 10 records, got %d", len(got))
	}
	if resp.Hits() != 40 {
		t.Errorf("expected hits 40, got %d", resp.Hits())
	}
	for _, src := range []*mockSource{a, b} {
		calls := src.Calls()
		if len(calls) != 1 {
			t.Fatalf("source %s: expected 1 call, got %d", src.id, len(calls))
		}
		q := calls[0].Query()
		if q.Start() != 1 || q.PageSize() != 10 {
			t.Errorf("source %s: expected (1, 10), got (%d, %d)", src.id, q.Start(), q.PageSize())
		}
	}
}

func TestFederate_DeepPageCorrectsOffset(t *testing.T) {
	a, b := sourceWith("a", 10), sourceWith("b", 10)
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{a, b}, newRequest(t, 5, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := drainResponse(t, resp)
	for _, src := range []*mockSource{a, b} {
		calls := src.Calls()
		if len(calls) != 1 {
			t.Fatalf("source %s: expected 1 call, got %d", src.id, len(calls))
		}
		q := calls[0].Query()
		if q.Start() != 1 || q.PageSize() != 7 {
			t.Errorf("source %s: expected (1, 7), got (%d, %d)", src.id, q.Start(), q.PageSize())
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(got), ids(got))
	}
	if resp.Hits() != 20 {
		t.Errorf("expected hits 20, got %d", resp.Hits())
	}
	// Raw positions 5..7 of one source's contiguous batch of 7.
	first := got[0].SourceID()
	for _, r := range got {
		if r.SourceID() != first {
			t.Fatalf("expected records from one batch, got %v", ids(got))
		}
	}
	want := []string{first + "5", first + "6", first + "7"}
	if !equalIDs(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
}

func TestFederate_SingleSourcePagesNatively(t *testing.T) {
	a := sourceWith("a", 10)
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{a}, newRequest(t, 5, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drainResponse(t, resp)
	if want := []string{"a5", "a6", "a7"}; !equalIDs(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
	q := a.Calls()[0].Query()
	if q.Start() != 5 || q.PageSize() != 3 {
		t.Errorf("expected native (5, 3), got (%d, %d)", q.Start(), q.PageSize())
	}
}

func TestFederate_FailedSourceReducesResult(t *testing.T) {
	a := sourceWith("a", 4)
	bad := &mockSource{id: "bad", err: errors.New("connection refused")}
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{a, bad}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("source failure must not fail the query: %v", err)
	}
	got := drainResponse(t, resp)
	if len(got) != 4 {
		t.Errorf("expected 4 records, got %d", len(got))
	}
	if resp.Hits() != 4 {
		t.Errorf("expected hits 4, got %d", resp.Hits())
	}
}

func TestFederate_AllSourcesFailed(t *testing.T) {
	svc := New(goSubmitter{}, nil)
	sources := []Source{
		&mockSource{id: "a", err: errors.New("boom")},
		&mockSource{id: "b", err: errors.New("boom")},
	}

	resp, err := svc.Federate(context.Background(), sources, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainResponse(t, resp); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
	if resp.Hits() != 0 {
		t.Errorf("expected hits 0, got %d", resp.Hits())
	}
}

func TestFederate_StopSignalAbortsBeforeDispatch(t *testing.T) {
	a, b := sourceWith("a", 3), sourceWith("b", 3)
	deny := PreQueryFunc(func(_ context.Context, src Source, req query.Request) (query.Request, error) {
		if src.ID() == "b" {
			return req, fmt.Errorf("%w: access denied", domain.ErrStopProcessing)
		}
		return req, nil
	})
	svc := New(goSubmitter{}, nil).WithPreQuery(deny)

	resp, err := svc.Federate(context.Background(), []Source{a, b}, newRequest(t, 1, 10))
	if !errors.Is(err, domain.ErrProcessingAborted) {
		t.Fatalf("expected ErrProcessingAborted, got %v", err)
	}
	if resp != nil {
		t.Error("expected nil response on abort")
	}
	if len(a.Calls()) != 0 || len(b.Calls()) != 0 {
		t.Error("no source may be queried after a stop signal")
	}
}

func TestFederate_PreQueryErrorKeepsRequest(t *testing.T) {
	a := sourceWith("a", 3)
	flaky := PreQueryFunc(func(_ context.Context, _ Source, req query.Request) (query.Request, error) {
		return req, errors.New("plugin glitch")
	})
	svc := New(goSubmitter{}, nil).WithPreQuery(flaky)

	resp, err := svc.Federate(context.Background(), []Source{a}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainResponse(t, resp); len(got) != 3 {
		t.Errorf("expected 3 records, got %d", len(got))
	}
}

func TestFederate_PreQueryRewritesPerSource(t *testing.T) {
	a, b := sourceWith("a", 3), sourceWith("b", 3)
	tag := PreQueryFunc(func(_ context.Context, src Source, req query.Request) (query.Request, error) {
		return req.WithProperty("target", src.ID()), nil
	})
	svc := New(goSubmitter{}, nil).WithPreQuery(tag)

	resp, err := svc.Federate(context.Background(), []Source{a, b}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainResponse(t, resp)

	for _, src := range []*mockSource{a, b} {
		v, _ := src.Calls()[0].Property("target")
		if v != src.id {
			t.Errorf("source %s received target %v", src.id, v)
		}
	}
}

func TestFederate_DuplicateSourcesQueriedOnce(t *testing.T) {
	a := sourceWith("a", 2)
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{a, nil, a}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drainResponse(t, resp)
	if len(a.Calls()) != 1 {
		t.Errorf("expected 1 call, got %d", len(a.Calls()))
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}

func TestFederate_NoSources(t *testing.T) {
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), nil, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainResponse(t, resp); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestFederate_ClampsStartIndex(t *testing.T) {
	a := sourceWith("a", 50)
	svc := New(goSubmitter{}, nil)
	if err := svc.SetMaxStartIndex(20); err != nil {
		t.Fatalf("SetMaxStartIndex: %v", err)
	}

	resp, err := svc.Federate(context.Background(), []Source{a}, newRequest(t, 40, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainResponse(t, resp)

	if got := a.Calls()[0].Query().Start(); got != 20 {
		t.Errorf("expected start clamped to 20, got %d", got)
	}
	if got := resp.Request().Query().Start(); got != 20 {
		t.Errorf("response request should carry clamped start, got %d", got)
	}
}

func TestSetMaxStartIndex_RejectsNonPositive(t *testing.T) {
	svc := New(goSubmitter{}, nil)
	if err := svc.SetMaxStartIndex(100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, n := range []int{0, -5} {
		if err := svc.SetMaxStartIndex(n); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("SetMaxStartIndex(%d): expected ErrInvalidConfig, got %v", n, err)
		}
	}
	if svc.MaxStartIndex() != 100 {
		t.Errorf("expected previous value 100 kept, got %d", svc.MaxStartIndex())
	}
}

func TestFederate_SlowSourceTimesOut(t *testing.T) {
	a := sourceWith("a", 2)
	slow := &mockSource{id: "slow", block: true}
	svc := New(goSubmitter{}, nil).WithDefaultTimeout(50 * time.Millisecond)

	started := time.Now()
	resp, err := svc.Federate(context.Background(), []Source{a, slow}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drainResponse(t, resp)
	if len(got) != 2 {
		t.Errorf("expected the fast source's 2 records, got %d", len(got))
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("query waited %v past its deadline", elapsed)
	}
	if resp.Hits() != 2 {
		t.Errorf("expected hits 2, got %d", resp.Hits())
	}
}

func TestFederate_RequestTimeoutOverridesDefault(t *testing.T) {
	slow := &mockSource{id: "slow", block: true}
	svc := New(goSubmitter{}, nil).WithDefaultTimeout(time.Hour)

	q, err := query.New(query.Criteria{}, 1, 10, query.Sort{}, false, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	resp, err := svc.Federate(context.Background(), []Source{slow}, query.NewRequest(q, false, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainResponse(t, resp)
}

func TestFederate_RefusedDispatchCountsAsFailure(t *testing.T) {
	svc := New(refusingSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{sourceWith("a", 3)}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainResponse(t, resp); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestFederate_SaturatedPoolDoesNotBlock(t *testing.T) {
	pool, err := executor.NewPool(1, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	hang := make(chan struct{})
	t.Cleanup(func() {
		close(hang)
		_ = pool.Release(time.Second)
	})
	if err := pool.Submit(func() { <-hang }); err != nil {
		t.Fatalf("occupy pool: %v", err)
	}

	svc := New(pool, nil)
	q, err := query.New(query.Criteria{}, 1, 10, query.Sort{}, false, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	a, b := sourceWith("a", 3), sourceWith("b", 3)

	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := svc.Federate(context.Background(), []Source{a, b}, query.NewRequest(q, false, nil, nil))
		done <- outcome{resp, err}
	}()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Federate blocked on a saturated pool")
	}
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if recs := drainResponse(t, got.resp); len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
	if got.resp.Hits() != 0 {
		t.Errorf("expected hits 0, got %d", got.resp.Hits())
	}
	if len(a.Calls()) != 0 || len(b.Calls()) != 0 {
		t.Error("refused sources must not be queried")
	}
}

func TestFederate_HitsAreReportedTotals(t *testing.T) {
	a := sourceWith("a", 3)
	a.hits = 1
	b := sourceWith("b", 2)
	b.hits = 40
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{a, b}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := drainResponse(t, resp); len(got) != 5 {
		t.Errorf("expected 5 records, got %d", len(got))
	}
	if resp.Hits() != 41 {
		t.Errorf("expected hits 41, got %d", resp.Hits())
	}
}

func TestFederate_SortedQueryMergesInOrder(t *testing.T) {
	a := &mockSource{id: "a", records: []result.Result{
		result.New("a1", "", "Delta", nil, 0),
		result.New("a2", "", "alpha", nil, 0),
	}}
	b := &mockSource{id: "b", records: []result.Result{
		result.New("b1", "", "Charlie", nil, 0),
	}}
	svc := New(goSubmitter{}, nil)

	q, err := query.New(query.Criteria{}, 1, 10, query.Sort{Field: "title"}, false, 0)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	resp, err := svc.Federate(context.Background(), []Source{a, b}, query.NewRequest(q, false, nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drainResponse(t, resp)
	if want := []string{"a2", "b1", "a1"}; !equalIDs(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
}

func TestFederate_StampsSourceID(t *testing.T) {
	svc := New(goSubmitter{}, nil)

	resp, err := svc.Federate(context.Background(), []Source{sourceWith("a", 1)}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drainResponse(t, resp)
	if len(got) != 1 || got[0].SourceID() != "a" {
		t.Errorf("expected record stamped with source a, got %+v", got)
	}
}

func TestFederate_PostQueryReplacesResponse(t *testing.T) {
	replacement := stream.New()
	replacement.Push(result.New("x", "plugin", "", nil, 0))
	replacement.CloseAndSetHits(1)

	swap := PostQueryFunc(func(_ context.Context, resp *Response) (*Response, error) {
		return resp.WithReader(replacement).WithProperty("swapped", true), nil
	})
	svc := New(goSubmitter{}, nil).WithPostQuery(swap)

	resp, err := svc.Federate(context.Background(), []Source{sourceWith("a", 3)}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := resp.Property("swapped"); v != true {
		t.Error("expected property set by post-query plugin")
	}
	got := drainResponse(t, resp)
	if want := []string{"x"}; !equalIDs(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
}

func TestFederate_PostQueryStopAborts(t *testing.T) {
	stop := PostQueryFunc(func(context.Context, *Response) (*Response, error) {
		return nil, domain.ErrStopProcessing
	})
	svc := New(goSubmitter{}, nil).WithPostQuery(stop)

	_, err := svc.Federate(context.Background(), []Source{sourceWith("a", 3)}, newRequest(t, 1, 10))
	if !errors.Is(err, domain.ErrProcessingAborted) {
		t.Fatalf("expected ErrProcessingAborted, got %v", err)
	}
}

func TestFederate_ReturnsBeforeSourcesResolve(t *testing.T) {
	slow := &mockSource{id: "slow", records: []result.Result{rec("s1", 0)}, delay: 100 * time.Millisecond}
	svc := New(goSubmitter{}, nil)

	started := time.Now()
	resp, err := svc.Federate(context.Background(), []Source{slow}, newRequest(t, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(started); elapsed >= 100*time.Millisecond {
		t.Errorf("Federate blocked for %v", elapsed)
	}
	if got := drainResponse(t, resp); len(got) != 1 {
		t.Errorf("expected 1 record, got %d", len(got))
	}
}
