package federation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/executor"
	"github.com/kailas-cloud/fedcat/internal/metrics"
	"github.com/kailas-cloud/fedcat/internal/stream"
)

// pendingTask is one dispatched per-source query.
type pendingTask struct {
	sourceID string
	future   *executor.Future[result.Response]
	started  time.Time
}

// monitor waits for dispatched tasks, merges whatever resolves into the raw
// stream and closes it with the summed hit count. It never waits past its deadline.
type monitor struct {
	tasks    []*pendingTask
	raw      *stream.Stream
	merger   Merger
	deadline time.Duration
	logger   *zap.Logger
}

// run blocks until every task resolved or the deadline passed, then closes the raw stream.
func (m *monitor) run(ctx context.Context) {
	completions := make(chan *pendingTask, len(m.tasks))
	stop := make(chan struct{})
	defer close(stop)

	for _, t := range m.tasks {
		t := t
		go func() {
			select {
			case <-t.future.Done():
				completions <- t
			case <-stop:
			}
		}()
	}

	timer := time.NewTimer(m.deadline)
	defer timer.Stop()

	resolved := make(map[*pendingTask]bool, len(m.tasks))
	var hits int64
	succeeded := 0

wait:
	for len(resolved) < len(m.tasks) {
		select {
		case t := <-completions:
			resolved[t] = true
			if n, ok := m.collect(t); ok {
				hits += n
				succeeded++
			}
		case <-timer.C:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	for _, t := range m.tasks {
		if resolved[t] {
			continue
		}
		// Tell the connector to stop; results it produces later are dropped.
		t.future.Cancel()
		elapsed := time.Since(t.started)
		m.logger.Warn("source query timed out",
			zap.String("source_id", t.sourceID),
			zap.Duration("duration", elapsed),
			zap.Duration("deadline", m.deadline),
		)
		metrics.SourceQueriesTotal.WithLabelValues(t.sourceID, metrics.OutcomeTimeout).Inc()
		metrics.SourceQueryDuration.WithLabelValues(t.sourceID, metrics.OutcomeTimeout).Observe(elapsed.Seconds())
	}

	m.merger.Flush()
	m.raw.CloseAndSetHits(hits)

	switch {
	case len(m.tasks) > 0 && succeeded == 0:
		m.logger.Warn("all sources failed", zap.Int("sources", len(m.tasks)))
		metrics.FederatedQueriesTotal.WithLabelValues(metrics.ResultAllFailed).Inc()
	default:
		m.logger.Debug("federated query resolved",
			zap.Int("sources", len(m.tasks)),
			zap.Int("succeeded", succeeded),
			zap.Int64("hits", hits),
		)
		metrics.FederatedQueriesTotal.WithLabelValues(metrics.ResultOK).Inc()
	}
}

// collect merges one resolved task. It reports the source hit count and whether the source succeeded.
func (m *monitor) collect(t *pendingTask) (int64, bool) {
	elapsed := time.Since(t.started)
	resp, err := t.future.Result()
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		m.logger.Warn("source query failed",
			zap.String("source_id", t.sourceID),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		metrics.SourceQueriesTotal.WithLabelValues(t.sourceID, outcome).Inc()
		metrics.SourceQueryDuration.WithLabelValues(t.sourceID, outcome).Observe(elapsed.Seconds())
		return 0, false
	}

	results := make([]result.Result, len(resp.Results))
	for i, r := range resp.Results {
		if r.SourceID() == "" {
			r = r.WithSource(t.sourceID)
		}
		results[i] = r
	}
	m.merger.Add(t.sourceID, results)

	// The reported total is summed as is, even when a source returns more
	// records than it counts.
	hits := resp.Hits

	m.logger.Debug("source query completed",
		zap.String("source_id", t.sourceID),
		zap.Duration("duration", elapsed),
		zap.Int("records", len(results)),
		zap.Int64("hits", hits),
	)
	metrics.SourceQueriesTotal.WithLabelValues(t.sourceID, metrics.OutcomeSuccess).Inc()
	metrics.SourceQueryDuration.WithLabelValues(t.sourceID, metrics.OutcomeSuccess).Observe(elapsed.Seconds())
	return hits, true
}
