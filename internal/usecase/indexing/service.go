package indexing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

const (
	// DefaultBatchSize is the number of chunks sent per embedding call.
	DefaultBatchSize = 100
	// DefaultConcurrency is the number of embedding batches in flight.
	DefaultConcurrency = 2
)

// BuildResult summarizes a committed rebuild.
type BuildResult struct {
	BuildID       string
	DocumentCount int
	ChunkCount    int
	SkippedCount  int
	Duration      time.Duration
}

// Service runs the load → chunk → embed → commit pipeline.
type Service struct {
	loader   Loader
	chunker  Chunker
	embedder Embedder
	index    Index
	logger   *zap.Logger

	batchSize   int
	concurrency int

	mu         sync.Mutex
	rebuilding atomic.Bool
}

// Option configures the Service.
type Option func(*Service)

// WithBatchSize sets the number of chunks per embedding call.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency sets how many embedding batches run in parallel.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an indexing service.
func New(loader Loader, chunker Chunker, embedder Embedder, index Index, opts ...Option) *Service {
	s := &Service{
		loader:      loader,
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		logger:      zap.NewNop(),
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports the lifecycle state. It is derived from the running flag and
// the index readiness, so a failed rebuild falls back to the previous state.
func (s *Service) State() State {
	if s.rebuilding.Load() {
		return StateIndexing
	}
	if s.index.Stats().Ready {
		return StateReady
	}
	return StateUninitialized
}

// Rebuild indexes the corpus at corpusPath from scratch and swaps the result in.
// Only one rebuild runs at a time; a concurrent call fails with
// domain.ErrRebuildInProgress. On failure the active snapshot is untouched.
func (s *Service) Rebuild(ctx context.Context, corpusPath string) (BuildResult, error) {
	if !s.mu.TryLock() {
		return BuildResult{}, fmt.Errorf("rebuild %s: %w", corpusPath, domain.ErrRebuildInProgress)
	}
	defer s.mu.Unlock()

	s.rebuilding.Store(true)
	defer s.rebuilding.Store(false)

	start := time.Now()
	res, err := s.rebuild(ctx, corpusPath)
	res.Duration = time.Since(start)

	if err != nil {
		metrics.RecordRebuild("error", res.Duration, 0)
		s.logger.Error("Rebuild failed",
			zap.String("corpus", corpusPath),
			zap.Duration("duration", res.Duration),
			zap.Error(err),
		)
		return BuildResult{}, err
	}

	metrics.RecordRebuild("success", res.Duration, res.ChunkCount)
	s.logger.Info("Rebuild completed",
		zap.String("build_id", res.BuildID),
		zap.Int("documents", res.DocumentCount),
		zap.Int("chunks", res.ChunkCount),
		zap.Int("skipped", res.SkippedCount),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Bootstrap builds the index at startup when the corpus exists and either no
// snapshot was restored or force is set. It reports whether a build ran.
func (s *Service) Bootstrap(ctx context.Context, corpusPath string, force bool) (BuildResult, bool, error) {
	if !force && s.index.Stats().Ready {
		s.logger.Info("Snapshot restored, skipping startup rebuild")
		return BuildResult{}, false, nil
	}
	if _, err := os.Stat(corpusPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Corpus not found, skipping startup rebuild", zap.String("corpus", corpusPath))
			return BuildResult{}, false, nil
		}
		return BuildResult{}, false, fmt.Errorf("stat corpus: %w", err)
	}

	res, err := s.Rebuild(ctx, corpusPath)
	if err != nil {
		return BuildResult{}, true, err
	}
	return res, true, nil
}

func (s *Service) rebuild(ctx context.Context, corpusPath string) (BuildResult, error) {
	loaded, err := s.loader.Load(ctx, corpusPath)
	if err != nil {
		return BuildResult{}, domain.NewIndexBuildError("load", err)
	}
	for _, sk := range loaded.Skipped {
		s.logger.Warn("Skipped corpus entry", zap.String("path", sk.Path), zap.String("reason", sk.Reason))
	}
	if len(loaded.Documents) == 0 {
		return BuildResult{}, domain.NewIndexBuildError("load", domain.ErrNoDocuments)
	}

	var chunks []chunk.Chunk
	for _, doc := range loaded.Documents {
		chunks = append(chunks, s.chunker.Chunk(doc)...)
	}
	if len(chunks) == 0 {
		return BuildResult{}, domain.NewIndexBuildError("chunk", domain.ErrNoDocuments)
	}
	s.logger.Info("Corpus chunked",
		zap.Int("documents", len(loaded.Documents)),
		zap.Int("chunks", len(chunks)),
	)

	embedded, err := s.embedAll(ctx, chunks)
	if err != nil {
		return BuildResult{}, domain.NewIndexBuildError("embed", err)
	}
	if err := verifyDimensions(embedded); err != nil {
		return BuildResult{}, domain.NewIndexBuildError("verify", err)
	}

	snap, err := s.index.UpsertSnapshot(ctx, embedded, len(loaded.Documents))
	if err != nil {
		return BuildResult{}, domain.NewIndexBuildError("commit", err)
	}

	return BuildResult{
		BuildID:       snap.ID(),
		DocumentCount: snap.DocumentCount(),
		ChunkCount:    snap.ChunkCount(),
		SkippedCount:  len(loaded.Skipped),
	}, nil
}

// embedAll embeds chunks in batches; the first failing batch cancels the rest.
func (s *Service) embedAll(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	out := make([]chunk.Chunk, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text()
			}

			res, err := domain.EmbedBatch(gctx, s.embedder, texts)
			if err != nil {
				return fmt.Errorf("batch [%d:%d]: %w", start, end, err)
			}
			if len(res.Embeddings) != len(texts) {
				return fmt.Errorf("batch [%d:%d]: %w: expected %d embeddings, got %d",
					start, end, domain.ErrEmbeddingProviderError, len(texts), len(res.Embeddings))
			}
			for i, vec := range res.Embeddings {
				out[start+i] = chunks[start+i].WithEmbedding(vec)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // wrapped per batch
	}
	return out, nil
}

func verifyDimensions(chunks []chunk.Chunk) error {
	dim := len(chunks[0].Embedding())
	if dim == 0 {
		return fmt.Errorf("%w: empty embedding for %s", domain.ErrVectorDimMismatch, chunks[0].ID())
	}
	for i := range chunks {
		if n := len(chunks[i].Embedding()); n != dim {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				domain.ErrVectorDimMismatch, chunks[i].ID(), n, dim)
		}
	}
	return nil
}
