package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
	"github.com/kailas-cloud/docqa/internal/domain/search/mode"
	"github.com/kailas-cloud/docqa/internal/domain/search/request"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

const (
	// DefaultEmbedTimeout bounds a single question embedding.
	DefaultEmbedTimeout = 30 * time.Second
	// DefaultExpandTimeout bounds the rephrasing call.
	DefaultExpandTimeout = 30 * time.Second
)

// Defaults holds the configured retrieval parameters.
type Defaults struct {
	Mode         mode.Mode
	K            int
	FetchK       int
	Lambda       float64
	MinScore     float64
	EmbedTimeout time.Duration
}

// DefaultDefaults returns plain similarity search with k=4.
func DefaultDefaults() Defaults {
	return Defaults{
		Mode:         mode.Similarity,
		K:            request.DefaultK,
		FetchK:       request.DefaultFetchK,
		Lambda:       request.DefaultLambda,
		EmbedTimeout: DefaultEmbedTimeout,
	}
}

// Service finds the chunks most relevant to a question.
type Service struct {
	index    SnapshotSource
	embed    Embedder
	defaults Defaults
	logger   *zap.Logger

	expander      Generator
	expandN       int
	expandTimeout time.Duration
}

// Option configures the service.
type Option func(*Service)

// WithQueryExpansion searches up to n generated rephrasings of every question
// besides the question itself. The rephrasing call is bounded by timeout.
func WithQueryExpansion(g Generator, n int, timeout time.Duration) Option {
	return func(s *Service) {
		if g == nil || n <= 0 {
			return
		}
		s.expander = g
		s.expandN = n
		if timeout > 0 {
			s.expandTimeout = timeout
		}
	}
}

// New creates a retrieval service.
func New(index SnapshotSource, embed Embedder, defaults Defaults, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.EmbedTimeout <= 0 {
		defaults.EmbedTimeout = DefaultEmbedTimeout
	}
	s := &Service{
		index:         index,
		embed:         embed,
		defaults:      defaults,
		logger:        logger,
		expandTimeout: DefaultExpandTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRequest builds a request from the configured defaults. k <= 0 keeps the default k.
func (s *Service) NewRequest(question string, k int, filters filter.Expression) (request.Request, error) {
	if k <= 0 {
		k = s.defaults.K
	}
	req, err := request.New(question, s.defaults.Mode, filters, k, s.defaults.FetchK, s.defaults.Lambda, s.defaults.MinScore)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return req, nil
}

// Retrieve returns the top-k chunks of the active snapshot for question.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]result.Result, error) {
	snap := s.index.Current()
	if snap == nil {
		return nil, domain.ErrNotReady
	}
	req, err := s.NewRequest(question, k, filter.Expression{})
	if err != nil {
		return nil, err
	}
	return s.RetrieveFrom(ctx, snap, req)
}

// RetrieveFrom runs req against a pinned snapshot. k is clamped to [1, chunk_count].
// With query expansion the hits of every phrasing are merged by chunk id, keeping
// the best score, and the top k are returned. An empty filtered result falls back
// to unfiltered retrieval. Failures to embed or search the question itself are
// wrapped in domain.RetrievalError; failed rephrasings are skipped.
func (s *Service) RetrieveFrom(
	ctx context.Context, snap *vectorindex.Snapshot, req request.Request,
) ([]result.Result, error) {
	if snap == nil {
		return nil, domain.ErrNotReady
	}
	if snap.ChunkCount() == 0 {
		return []result.Result{}, nil
	}

	emb, err := s.embedQuestion(ctx, req.Query())
	if err != nil {
		return nil, &domain.RetrievalError{Err: fmt.Errorf("embed question: %w", err)}
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	vectors := [][]float32{emb.Embedding}
	vectors = append(vectors, s.expandedVectors(ctx, req.Query(), snap.Dimension())...)

	k := clamp(req.K(), 1, snap.ChunkCount())

	hits, err := s.searchAll(snap, vectors, req, k)
	if err != nil {
		return nil, &domain.RetrievalError{Err: err}
	}

	if len(hits) == 0 && !req.Filters().IsEmpty() {
		s.logger.Debug("Filtered retrieval returned nothing, falling back to unfiltered")
		hits, err = s.searchAll(snap, vectors, req.WithoutFilters(), k)
		if err != nil {
			return nil, &domain.RetrievalError{Err: err}
		}
	}

	if req.MinScore() != 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score() >= req.MinScore() {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	return hits, nil
}

// embedQuestion calls the embedder under the configured timeout.
func (s *Service) embedQuestion(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return bounded(ctx, s.defaults.EmbedTimeout, domain.ErrEmbeddingProviderError,
		func(ctx context.Context) (domain.EmbeddingResult, error) {
			return s.embed.Embed(ctx, text)
		})
}

// searchAll runs one search per query vector and merges the hits.
func (s *Service) searchAll(
	snap *vectorindex.Snapshot, vectors [][]float32, req request.Request, k int,
) ([]result.Result, error) {
	if len(vectors) == 1 {
		return s.search(snap, vectors[0], req, k)
	}
	lists := make([][]result.Result, 0, len(vectors))
	for _, vec := range vectors {
		hits, err := s.search(snap, vec, req, k)
		if err != nil {
			return nil, err
		}
		lists = append(lists, hits)
	}
	return mergeHits(lists, k), nil
}

func (s *Service) search(
	snap *vectorindex.Snapshot, vec []float32, req request.Request, k int,
) ([]result.Result, error) {
	if req.Mode() != mode.MMR {
		hits, err := snap.Search(vec, k, req.Filters())
		if err != nil {
			return nil, fmt.Errorf("query index: %w", err)
		}
		return hits, nil
	}

	fetch := clamp(max(req.FetchK(), k), 1, snap.ChunkCount())
	candidates, err := snap.Search(vec, fetch, req.Filters())
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return selectMMR(vec, candidates, k, req.Lambda()), nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
