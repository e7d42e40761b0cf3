// Package redact is a post-query plugin that strips attributes from records
// before they reach the caller.
package redact

import (
	"context"
	"slices"

	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/stream"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

// Plugin removes configured attribute names from every record.
type Plugin struct {
	names  []string
	exempt []string
}

var _ federation.PostQueryPlugin = (*Plugin)(nil)

// New creates the plugin. Callers in any of the exempt groups see records unchanged.
func New(names, exempt []string) *Plugin {
	return &Plugin{names: slices.Clone(names), exempt: slices.Clone(exempt)}
}

// Process implements federation.PostQueryPlugin.
func (p *Plugin) Process(_ context.Context, resp *federation.Response) (*federation.Response, error) {
	if len(p.names) == 0 {
		return resp, nil
	}
	for _, g := range resp.Request().Groups() {
		if slices.Contains(p.exempt, g) {
			return resp, nil
		}
	}
	return resp.WithReader(&reader{Reader: resp.Reader(), names: p.names}), nil
}

// reader decorates a stream, redacting records as they are taken.
type reader struct {
	stream.Reader
	names []string
}

func (r *reader) Take() (result.Result, bool) {
	rec, ok := r.Reader.Take()
	if !ok {
		return rec, false
	}
	return rec.WithoutAttributes(r.names...), true
}

func (r *reader) TakeContext(ctx context.Context) (result.Result, bool, error) {
	rec, ok, err := r.Reader.TakeContext(ctx)
	if !ok || err != nil {
		return rec, ok, err
	}
	return rec.WithoutAttributes(r.names...), true, nil
}
