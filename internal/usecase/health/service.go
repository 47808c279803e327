package health

import (
	"context"
	"sync"
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
	// CheckNotReady indicates the index has no committed snapshot yet.
	CheckNotReady CheckResult = "not_ready"
)

// DefaultCheckTimeout bounds each component probe.
const DefaultCheckTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index      IndexChecker
	cache      DBPinger
	embedding  CapabilityChecker
	generation CapabilityChecker
	timeout    time.Duration
}

// New creates a Service. cache, embedding and generation can be nil.
func New(index IndexChecker, cache DBPinger, embedding, generation CapabilityChecker) *Service {
	return &Service{
		index:      index,
		cache:      cache,
		embedding:  embedding,
		generation: generation,
		timeout:    DefaultCheckTimeout,
	}
}

// Check runs the probes concurrently. A missing index makes the service
// unhealthy; any other failing probe degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.index.Ready() {
		checks["index"] = CheckOK
	} else {
		checks["index"] = CheckNotReady
	}

	probes := map[string]func(context.Context) error{}
	if s.cache != nil {
		probes["cache"] = s.cache.Ping
	}
	if s.embedding != nil {
		probes["embedding"] = s.embedding.HealthCheck
	}
	if s.generation != nil {
		probes["generation"] = s.generation.HealthCheck
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := probe(pctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}
	if checks["index"] != CheckOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
