package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/executor"
	logpkg "github.com/kailas-cloud/fedcat/internal/logger"
	"github.com/kailas-cloud/fedcat/internal/metrics"
	"github.com/kailas-cloud/fedcat/internal/stream"
)

// DefaultTimeout bounds a federated query whose request carries no timeout.
const DefaultTimeout = 30 * time.Second

// Service fans one query out to many sources and merges the answers into a
// single correctly paginated stream.
type Service struct {
	pool           Executor
	pre            []PreQueryPlugin
	post           []PostQueryPlugin
	policy         MergePolicy
	maxStartIndex  int
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// New creates a federation service running source tasks on pool.
func New(pool Executor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		pool:           pool,
		policy:         ArrivalOrder{},
		maxStartIndex:  query.DefaultMaxStartIndex,
		defaultTimeout: DefaultTimeout,
		logger:         logger,
	}
}

// WithPreQuery appends pre-query plugins to the chain.
func (s *Service) WithPreQuery(plugins ...PreQueryPlugin) *Service {
	s.pre = append(s.pre, plugins...)
	return s
}

// WithPostQuery appends post-query plugins to the chain.
func (s *Service) WithPostQuery(plugins ...PostQueryPlugin) *Service {
	s.post = append(s.post, plugins...)
	return s
}

// WithMergePolicy sets the policy for unsorted queries. Sorted queries always
// use an ordered merge on the requested sort.
func (s *Service) WithMergePolicy(p MergePolicy) *Service {
	if p != nil {
		s.policy = p
	}
	return s
}

// WithDefaultTimeout sets the timeout applied when a request carries none.
func (s *Service) WithDefaultTimeout(d time.Duration) *Service {
	if d > 0 {
		s.defaultTimeout = d
	}
	return s
}

// SetMaxStartIndex changes the deepest offset a caller may request.
// Non-positive values are rejected and the current value is kept.
func (s *Service) SetMaxStartIndex(n int) error {
	if n <= 0 {
		s.logger.Warn("rejected max start index, keeping current",
			zap.Int("requested", n), zap.Int("current", s.maxStartIndex))
		return fmt.Errorf("%w: max start index must be positive, got %d", domain.ErrInvalidConfig, n)
	}
	s.maxStartIndex = n
	return nil
}

// MaxStartIndex returns the deepest offset a caller may request.
func (s *Service) MaxStartIndex() int { return s.maxStartIndex }

// Federate dispatches req to every distinct source and returns immediately;
// the response fills in the background. Only plugin stop signals fail the
// call: source errors and timeouts just reduce the merged result.
func (s *Service) Federate(ctx context.Context, sources []Source, req query.Request) (*Response, error) {
	log := logpkg.FromContextOr(ctx, s.logger).With(zap.String("query_id", req.ID()))

	distinct := s.distinctSources(sources, log)

	q := req.Query()
	q = q.WithPage(clampStart(q.Start(), s.maxStartIndex), q.PageSize())
	timeout := q.Timeout()
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	q = q.WithTimeout(timeout)
	normalized := req.WithQuery(q)

	start, size, needsCorrection := NormalizeOffset(q.Start(), q.PageSize(), len(distinct), s.maxStartIndex)
	shared := req.WithQuery(q.WithPage(start, size))

	perSource, err := s.runPreQuery(ctx, distinct, shared, log)
	if err != nil {
		metrics.FederatedQueriesTotal.WithLabelValues(metrics.ResultAborted).Inc()
		return nil, err
	}

	// Every task context ends at the deadline even if the caller's context lives on.
	taskCtx, cancel := context.WithTimeout(ctx, timeout)

	raw := stream.New()
	tasks := s.dispatch(taskCtx, distinct, perSource, log)

	mon := &monitor{
		tasks:    tasks,
		raw:      raw,
		merger:   s.policyFor(q).NewMerger(raw, size),
		deadline: timeout,
		logger:   log,
	}
	go func() {
		defer cancel()
		mon.run(taskCtx)
	}()

	var reader stream.Reader = raw
	if needsCorrection && len(distinct) > 1 {
		final := stream.New()
		go correctOffset(raw, final, q.PageSize(), q.Start())
		reader = final
		metrics.OffsetCorrectionsTotal.Inc()
	}

	log.Debug("federated query dispatched",
		zap.Int("sources", len(distinct)),
		zap.Int("tasks", len(tasks)),
		zap.Int("start", q.Start()),
		zap.Int("page_size", q.PageSize()),
		zap.Bool("offset_correction", needsCorrection),
		zap.Duration("timeout", timeout),
	)

	return s.runPostQuery(ctx, NewResponse(normalized, reader), log)
}

// distinctSources drops nil sources and repeated IDs, keeping first occurrences in order.
func (s *Service) distinctSources(sources []Source, log *zap.Logger) []Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src == nil {
			log.Debug("skipping nil source")
			continue
		}
		id := src.ID()
		if _, dup := seen[id]; dup {
			log.Info("skipping duplicate source", zap.String("source_id", id))
			metrics.DuplicateSourcesTotal.Inc()
			continue
		}
		seen[id] = struct{}{}
		out = append(out, src)
	}
	return out
}

// runPreQuery builds the request for each source. Nothing is dispatched until
// every source passed the chain, so a stop signal for one source aborts all.
func (s *Service) runPreQuery(
	ctx context.Context, sources []Source, shared query.Request, log *zap.Logger,
) ([]query.Request, error) {
	out := make([]query.Request, len(sources))
	for i, src := range sources {
		req := shared
		for _, p := range s.pre {
			next, err := p.Process(ctx, src, req)
			if err != nil {
				if errors.Is(err, domain.ErrStopProcessing) {
					log.Warn("pre-query plugin stopped processing",
						zap.String("plugin", fmt.Sprintf("%T", p)),
						zap.String("source_id", src.ID()),
						zap.Error(err),
					)
					return nil, fmt.Errorf("%w: pre-query plugin on source %s: %w",
						domain.ErrProcessingAborted, src.ID(), err)
				}
				log.Warn("pre-query plugin failed, keeping request",
					zap.String("plugin", fmt.Sprintf("%T", p)),
					zap.String("source_id", src.ID()),
					zap.Error(err),
				)
				metrics.PluginErrorsTotal.WithLabelValues("pre").Inc()
				continue
			}
			req = next
		}
		out[i] = req
	}
	return out, nil
}

// dispatch submits one task per source. A source the pool refuses counts as failed.
func (s *Service) dispatch(
	ctx context.Context, sources []Source, reqs []query.Request, log *zap.Logger,
) []*pendingTask {
	tasks := make([]*pendingTask, 0, len(sources))
	for i, src := range sources {
		src := src
		req := reqs[i]
		started := time.Now()
		f, err := executor.Go(ctx, s.pool, func(ctx context.Context) (result.Response, error) {
			// A pre-query plugin may have given this source a shorter timeout.
			if d := req.Query().Timeout(); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return src.Query(ctx, req)
		})
		if err != nil {
			log.Error("source query not dispatched",
				zap.String("source_id", src.ID()),
				zap.Error(err),
			)
			metrics.SourceQueriesTotal.WithLabelValues(src.ID(), metrics.OutcomeFailure).Inc()
			continue
		}
		tasks = append(tasks, &pendingTask{sourceID: src.ID(), future: f, started: started})
	}
	return tasks
}

// runPostQuery passes the response through the post-query chain.
func (s *Service) runPostQuery(ctx context.Context, resp *Response, log *zap.Logger) (*Response, error) {
	for _, p := range s.post {
		next, err := p.Process(ctx, resp)
		if err != nil {
			if errors.Is(err, domain.ErrStopProcessing) {
				log.Warn("post-query plugin stopped processing",
					zap.String("plugin", fmt.Sprintf("%T", p)),
					zap.Error(err),
				)
				metrics.FederatedQueriesTotal.WithLabelValues(metrics.ResultAborted).Inc()
				return nil, fmt.Errorf("%w: post-query plugin: %w", domain.ErrProcessingAborted, err)
			}
			log.Warn("post-query plugin failed, keeping response",
				zap.String("plugin", fmt.Sprintf("%T", p)),
				zap.Error(err),
			)
			metrics.PluginErrorsTotal.WithLabelValues("post").Inc()
			continue
		}
		if next != nil {
			resp = next
		}
	}
	return resp, nil
}

// policyFor picks the merge policy: a requested sort always wins.
func (s *Service) policyFor(q query.Query) MergePolicy {
	if !q.Sort().IsZero() {
		return OrderedBy(result.ForSort(q.Sort()))
	}
	return s.policy
}
