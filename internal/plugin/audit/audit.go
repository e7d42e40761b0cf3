// Package audit is a post-query plugin that records who queried what.
package audit

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	logpkg "github.com/kailas-cloud/fedcat/internal/logger"
	"github.com/kailas-cloud/fedcat/internal/metrics"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

// Plugin writes one audit line per federated query.
type Plugin struct {
	logger *zap.Logger
}

var _ federation.PostQueryPlugin = (*Plugin)(nil)

// New creates the plugin.
func New(logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{logger: logger.Named("audit")}
}

// Process implements federation.PostQueryPlugin. The response passes through unchanged.
func (p *Plugin) Process(ctx context.Context, resp *federation.Response) (*federation.Response, error) {
	req := resp.Request()
	q := req.Query()
	subject, _ := req.Property(query.PropSubject)

	logpkg.FromContextOr(ctx, p.logger).Info("federated query",
		zap.String("query_id", req.ID()),
		zap.Any("subject", subject),
		zap.String("text", q.Text()),
		zap.Int("start", q.Start()),
		zap.Int("page_size", q.PageSize()),
		zap.Bool("enterprise", req.Enterprise()),
		zap.Strings("sources", req.SourceIDs()),
	)
	metrics.AuditedQueriesTotal.WithLabelValues(strconv.FormatBool(req.Enterprise())).Inc()
	return resp, nil
}
