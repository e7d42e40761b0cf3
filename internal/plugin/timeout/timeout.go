// Package timeout is a pre-query plugin bounding how long each source may run.
package timeout

import (
	"context"
	"maps"
	"time"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

// Plugin lowers the request timeout to the source's limit.
type Plugin struct {
	max       time.Duration
	perSource map[string]time.Duration
}

var _ federation.PreQueryPlugin = (*Plugin)(nil)

// New creates the plugin. limit applies to every source without its own entry;
// zero means no limit.
func New(limit time.Duration, perSource map[string]time.Duration) *Plugin {
	return &Plugin{max: limit, perSource: maps.Clone(perSource)}
}

// Process implements federation.PreQueryPlugin.
func (p *Plugin) Process(_ context.Context, src federation.Source, req query.Request) (query.Request, error) {
	limit := p.max
	if d, ok := p.perSource[src.ID()]; ok {
		limit = d
	}
	if limit <= 0 {
		return req, nil
	}

	q := req.Query()
	if q.Timeout() > 0 && q.Timeout() <= limit {
		return req, nil
	}
	return req.WithQuery(q.WithTimeout(limit)), nil
}
