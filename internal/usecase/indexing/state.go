package indexing

// State is the lifecycle state of the service.
type State string

const (
	// StateUninitialized means no snapshot has been committed yet.
	StateUninitialized State = "uninitialized"
	// StateIndexing means a rebuild is running. A previous snapshot, if any, keeps serving.
	StateIndexing State = "indexing"
	// StateReady means a committed snapshot is serving queries.
	StateReady State = "ready"
)
