package health

import "context"

// PoolChecker reports whether the task executor still accepts work.
type PoolChecker interface {
	Closed() bool
}

// SourcePinger checks a source backend's availability.
type SourcePinger interface {
	Ping(ctx context.Context) error
}
