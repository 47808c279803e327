// Package vectorindex holds the in-memory vector index: immutable snapshots
// behind an atomically swapped pointer, queried by brute-force similarity.
package vectorindex

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// Stats is a point-in-time view of the active snapshot.
type Stats struct {
	Ready         bool
	DocumentCount int
	ChunkCount    int
	Dimension     int
	BuiltAt       time.Time
	BuildID       string
	Metric        Metric
}

// Index serves queries from the active snapshot. Readers never lock; a new
// snapshot is built off to the side and published with a single pointer swap.
type Index struct {
	current   atomic.Pointer[Snapshot]
	metric    Metric
	persister Persister
	now       func() time.Time
}

// Option configures the index.
type Option func(*Index)

// WithPersister stores every committed snapshot durably before it is published.
func WithPersister(p Persister) Option {
	return func(ix *Index) { ix.persister = p }
}

// WithClock overrides the build timestamp source.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// New creates an empty, not-ready index.
func New(metric Metric, opts ...Option) *Index {
	if metric == "" {
		metric = MetricCosine
	}
	ix := &Index{metric: metric, now: time.Now}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// UpsertSnapshot builds a snapshot from the complete chunk set, persists it and
// makes it active. On error the previously active snapshot is untouched.
func (ix *Index) UpsertSnapshot(ctx context.Context, chunks []chunk.Chunk, documentCount int) (*Snapshot, error) {
	snap, err := NewSnapshot(uuid.NewString(), ix.now(), ix.metric, documentCount, chunks)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	if ix.persister != nil {
		if err := ix.persister.Save(ctx, snap); err != nil {
			return nil, fmt.Errorf("persist snapshot: %w", err)
		}
	}

	ix.current.Store(snap)
	metrics.RecordIndexSnapshot(snap.DocumentCount(), snap.ChunkCount())
	return snap, nil
}

// Restore loads the persisted snapshot, if any. A missing snapshot is not an
// error; a corrupt one is returned and leaves the index not ready.
func (ix *Index) Restore(ctx context.Context) error {
	if ix.persister == nil {
		return nil
	}

	snap, err := ix.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}

	// a rebuild that finished first wins
	if ix.current.CompareAndSwap(nil, snap) {
		metrics.RecordIndexSnapshot(snap.DocumentCount(), snap.ChunkCount())
	}
	return nil
}

// Current returns the active snapshot, or nil before the first commit.
func (ix *Index) Current() *Snapshot {
	return ix.current.Load()
}

// Ready reports whether a snapshot has been committed.
func (ix *Index) Ready() bool { return ix.current.Load() != nil }

// Query searches the active snapshot. A not-ready index yields an empty slice.
func (ix *Index) Query(vector []float32, k int) ([]result.Result, error) {
	snap := ix.current.Load()
	if snap == nil {
		return []result.Result{}, nil
	}
	return snap.Query(vector, k)
}

// Stats reports the active snapshot's counters.
func (ix *Index) Stats() Stats {
	snap := ix.current.Load()
	if snap == nil {
		return Stats{Metric: ix.metric}
	}
	return Stats{
		Ready:         true,
		DocumentCount: snap.DocumentCount(),
		ChunkCount:    snap.ChunkCount(),
		Dimension:     snap.Dimension(),
		BuiltAt:       snap.BuiltAt(),
		BuildID:       snap.ID(),
		Metric:        snap.Metric(),
	}
}
