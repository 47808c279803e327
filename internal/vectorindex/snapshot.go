package vectorindex

import (
	"fmt"
	"sort"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
)

// Snapshot is an immutable, fully built version of the index.
// It is safe for concurrent reads and is never modified after NewSnapshot.
type Snapshot struct {
	id            string
	builtAt       time.Time
	metric        Metric
	dimension     int
	documentCount int
	chunks        []chunk.Chunk
	norms         []float64
}

// NewSnapshot validates chunks and builds a snapshot. Every chunk must carry an
// embedding of the same non-zero dimension. An empty chunk set is allowed.
func NewSnapshot(
	id string, builtAt time.Time, metric Metric, documentCount int, chunks []chunk.Chunk,
) (*Snapshot, error) {
	if id == "" {
		return nil, fmt.Errorf("snapshot id is required")
	}
	if metric == "" {
		metric = MetricCosine
	}

	dim := 0
	norms := make([]float64, len(chunks))
	for i := range chunks {
		emb := chunks[i].Embedding()
		if len(emb) == 0 {
			return nil, fmt.Errorf("%w: chunk %s has no embedding", domain.ErrVectorDimMismatch, chunks[i].ID())
		}
		if dim == 0 {
			dim = len(emb)
		}
		if len(emb) != dim {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				domain.ErrVectorDimMismatch, chunks[i].ID(), len(emb), dim)
		}
		norms[i] = Norm(emb)
	}

	cp := make([]chunk.Chunk, len(chunks))
	copy(cp, chunks)

	return &Snapshot{
		id:            id,
		builtAt:       builtAt.UTC(),
		metric:        metric,
		dimension:     dim,
		documentCount: documentCount,
		chunks:        cp,
		norms:         norms,
	}, nil
}

// ID returns the build identifier.
func (s *Snapshot) ID() string { return s.id }

// BuiltAt returns the build timestamp (UTC).
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Metric returns the similarity metric.
func (s *Snapshot) Metric() Metric { return s.metric }

// Dimension returns the embedding dimension (0 for an empty snapshot).
func (s *Snapshot) Dimension() int { return s.dimension }

// DocumentCount returns the number of source documents.
func (s *Snapshot) DocumentCount() int { return s.documentCount }

// ChunkCount returns the number of chunks.
func (s *Snapshot) ChunkCount() int { return len(s.chunks) }

// Chunks returns the chunks in insertion order. Callers must not modify the slice.
func (s *Snapshot) Chunks() []chunk.Chunk { return s.chunks }

// Query returns the k closest chunks in descending score order.
func (s *Snapshot) Query(vector []float32, k int) ([]result.Result, error) {
	return s.Search(vector, k, filter.Expression{})
}

// Search returns the k closest chunks whose metadata matches the filter.
// Ties keep insertion order. An empty snapshot or k <= 0 yields an empty slice.
func (s *Snapshot) Search(vector []float32, k int, f filter.Expression) ([]result.Result, error) {
	if len(s.chunks) == 0 || k <= 0 {
		return []result.Result{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrVectorDimMismatch, len(vector), s.dimension)
	}

	type scored struct {
		idx   int
		score float64
	}

	qNorm := Norm(vector)
	candidates := make([]scored, 0, len(s.chunks))
	for i := range s.chunks {
		if !f.IsEmpty() && !s.chunks[i].MatchesMetadata(f) {
			continue
		}
		candidates = append(candidates, scored{
			idx:   i,
			score: s.metric.Score(vector, s.chunks[i].Embedding(), qNorm, s.norms[i]),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]result.Result, len(candidates))
	for i, c := range candidates {
		results[i] = result.New(s.chunks[c.idx], c.score)
	}
	return results, nil
}
