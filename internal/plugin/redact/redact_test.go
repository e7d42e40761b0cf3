package redact

import (
	"context"
	"testing"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/stream"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

func newResponse(groups []string) (*federation.Response, *stream.Stream) {
	s := stream.New()
	req := query.NewRequest(query.Query{}, false, nil, map[string]any{query.PropGroups: groups})
	return federation.NewResponse(req, s), s
}

func record() result.Result {
	return result.New("r1", "src", "Report", map[string]string{
		"owner":  "alice",
		"secret": "x",
		"format": "pdf",
	}, 1)
}

func TestProcess_StripsAttributes(t *testing.T) {
	resp, s := newResponse(nil)
	s.Push(record())
	s.CloseAndSetHits(7)

	got, err := New([]string{"owner", "secret"}, nil).Process(context.Background(), resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, ok := got.Take()
	if !ok {
		t.Fatal("expected a record")
	}
	if _, found := r.Attribute("owner"); found {
		t.Error("owner should be redacted")
	}
	if _, found := r.Attribute("secret"); found {
		t.Error("secret should be redacted")
	}
	if v, _ := r.Attribute("format"); v != "pdf" {
		t.Errorf("format = %q, want pdf", v)
	}
	if got.Hits() != 7 {
		t.Errorf("hits = %d, want 7", got.Hits())
	}
	if _, ok := got.Take(); ok {
		t.Error("expected drained stream")
	}
}

func TestProcess_TakeContext(t *testing.T) {
	resp, s := newResponse(nil)
	s.Push(record())
	s.CloseAndSetHits(1)

	got, _ := New([]string{"owner"}, nil).Process(context.Background(), resp)
	r, ok, err := got.TakeContext(context.Background())
	if err != nil || !ok {
		t.Fatalf("TakeContext = %v, %v", ok, err)
	}
	if _, found := r.Attribute("owner"); found {
		t.Error("owner should be redacted")
	}
}

func TestProcess_ExemptGroup(t *testing.T) {
	resp, s := newResponse([]string{"admins"})
	s.Push(record())
	s.CloseAndSetHits(1)

	got, _ := New([]string{"owner"}, []string{"admins"}).Process(context.Background(), resp)
	if got != resp {
		t.Fatal("exempt caller should get the original response")
	}
	r, _ := got.Take()
	if _, found := r.Attribute("owner"); !found {
		t.Error("owner should be kept for exempt caller")
	}
}

func TestProcess_NoNames(t *testing.T) {
	resp, _ := newResponse(nil)
	got, _ := New(nil, nil).Process(context.Background(), resp)
	if got != resp {
		t.Error("plugin without names should be a no-op")
	}
}

func TestProcess_SourceRecordUntouched(t *testing.T) {
	orig := record()
	resp, s := newResponse(nil)
	s.Push(orig)
	s.CloseAndSetHits(1)

	got, _ := New([]string{"owner"}, nil).Process(context.Background(), resp)
	got.Take()
	if _, found := orig.Attribute("owner"); !found {
		t.Error("redaction must not mutate the source record")
	}
}
