// Package access is a pre-query plugin enforcing per-source group requirements.
package access

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	logpkg "github.com/kailas-cloud/fedcat/internal/logger"
	"github.com/kailas-cloud/fedcat/internal/metrics"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

// Plugin stops the federated query when the caller may not read a selected source.
type Plugin struct {
	required map[string][]string
	logger   *zap.Logger
}

var _ federation.PreQueryPlugin = (*Plugin)(nil)

// New creates the plugin. required maps a source ID to the groups allowed to
// query it; a caller needs any one of them. Sources not listed are open.
func New(required map[string][]string, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := make(map[string][]string, len(required))
	for id, groups := range required {
		if len(groups) > 0 {
			rules[id] = slices.Clone(groups)
		}
	}
	return &Plugin{required: rules, logger: logger}
}

// Groups returns the groups required for a source, nil when it is open.
func (p *Plugin) Groups(sourceID string) []string {
	return slices.Clone(p.required[sourceID])
}

// Process implements federation.PreQueryPlugin.
func (p *Plugin) Process(ctx context.Context, src federation.Source, req query.Request) (query.Request, error) {
	need, ok := p.required[src.ID()]
	if !ok {
		return req, nil
	}

	have := req.Groups()
	for _, g := range need {
		if slices.Contains(have, g) {
			return req, nil
		}
	}

	subject, _ := req.Property(query.PropSubject)
	logpkg.FromContextOr(ctx, p.logger).Info("access denied",
		zap.String("query_id", req.ID()),
		zap.String("source_id", src.ID()),
		zap.Any("subject", subject),
		zap.Strings("required_groups", need),
	)
	metrics.AccessDeniedTotal.WithLabelValues(src.ID()).Inc()
	return req, fmt.Errorf("%w: access to source %s denied", domain.ErrStopProcessing, src.ID())
}
