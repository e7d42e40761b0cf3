// Package ratelimit throttles queries sent to a catalog source.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/source"
)

// Querier is a catalog source.
type Querier interface {
	ID() string
	Query(ctx context.Context, req query.Request) (result.Response, error)
}

// Config holds the token bucket settings.
type Config struct {
	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64
	// Burst is the maximum burst size. Defaults to 1.
	Burst int
}

// Source delays queries to the wrapped source so the configured rate holds.
// A query whose context ends while waiting fails without reaching the source.
type Source struct {
	inner   Querier
	limiter *rate.Limiter
}

// Wrap decorates inner with a limiter. A non-positive rate returns inner unchanged.
func Wrap(inner Querier, cfg Config) Querier {
	if cfg.RequestsPerSecond <= 0 {
		return inner
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Source{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// ID returns the wrapped source's identifier.
func (s *Source) ID() string { return s.inner.ID() }

// Query waits for a token, then forwards.
func (s *Source) Query(ctx context.Context, req query.Request) (result.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return result.Response{}, fmt.Errorf("rate limit %s: %w", s.inner.ID(), err)
	}
	return s.inner.Query(ctx, req)
}

// Ping forwards to the wrapped source when it can be pinged.
func (s *Source) Ping(ctx context.Context) error {
	if p, ok := s.inner.(source.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Unwrap returns the wrapped source.
func (s *Source) Unwrap() Querier { return s.inner }
