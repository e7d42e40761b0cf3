package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// poolCheck is the check name for the executor.
const poolCheck = "executor"

// defaultPingTimeout bounds each source ping.
const defaultPingTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	pool        PoolChecker
	sources     map[string]SourcePinger
	pingTimeout time.Duration
}

// New creates a Service. Sources are keyed by source ID; either argument may be nil.
func New(pool PoolChecker, sources map[string]SourcePinger) *Service {
	return &Service{pool: pool, sources: sources, pingTimeout: defaultPingTimeout}
}

// WithPingTimeout overrides the per-source ping timeout.
func (s *Service) WithPingTimeout(d time.Duration) *Service {
	if d > 0 {
		s.pingTimeout = d
	}
	return s
}

// Check runs health checks against all components. A closed executor makes
// the service unhealthy since no query can run; failing sources only degrade it
// unless none is left.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.sources)+1)

	poolOK := true
	if s.pool != nil {
		poolOK = !s.pool.Closed()
		checks[poolCheck] = result(poolOK)
	}

	failed := 0
	for id, p := range s.sources {
		pctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
		err := p.Ping(pctx)
		cancel()
		checks["source:"+id] = result(err == nil)
		if err != nil {
			failed++
		}
	}

	status := Healthy
	switch {
	case !poolOK:
		status = Unhealthy
	case len(s.sources) > 0 && failed == len(s.sources):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func result(ok bool) CheckResult {
	if ok {
		return CheckOK
	}
	return CheckError
}
