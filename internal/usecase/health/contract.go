package health

import "context"

// IndexChecker reports whether a committed snapshot is being served.
type IndexChecker interface {
	Ready() bool
}

// DBPinger checks cache store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// CapabilityChecker checks an embedding or generation provider.
type CapabilityChecker interface {
	HealthCheck(ctx context.Context) error
}
