// Package executor provides the shared worker pool that per-source query
// tasks run on, and futures to wait on their outcome.
package executor

import (
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultPoolSize is used when no size is configured.
const DefaultPoolSize = 64

// Submitter accepts a unit of work. *Pool and *ants.Pool both satisfy it.
type Submitter interface {
	Submit(task func()) error
}

// Pool is a bounded goroutine pool backed by ants.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger
}

var _ Submitter = (*Pool)(nil)

// NewPool creates a pool running at most size tasks at once.
// Submit never blocks: a saturated pool refuses the task with ants.ErrPoolOverload.
func NewPool(size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{logger: logger}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("task panic", zap.Any("panic", v), zap.Stack("stacktrace"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Submit schedules task on the pool.
func (p *Pool) Submit(task func()) error {
	if err := p.pool.Submit(task); err != nil {
		return fmt.Errorf("submit task: %w", err)
	}
	return nil
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int { return p.pool.Running() }

// Free returns the number of idle slots.
func (p *Pool) Free() int { return p.pool.Free() }

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Closed reports whether the pool has been released.
func (p *Pool) Closed() bool { return p.pool.IsClosed() }

// Release stops accepting tasks and waits up to timeout for running ones.
func (p *Pool) Release(timeout time.Duration) error {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release pool: %w", err)
	}
	return nil
}
