package vectorindex

import "context"

// Persister stores snapshots durably.
type Persister interface {
	// Save writes the snapshot and makes it the current one.
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns the current snapshot; (nil, nil) when none was ever saved.
	Load(ctx context.Context) (*Snapshot, error)
}
