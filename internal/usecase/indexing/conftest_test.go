package indexing

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/document"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// --- Mocks ---

type mockLoader struct {
	result corpus.Result
	err    error
}

func (m *mockLoader) Load(_ context.Context, _ string) (corpus.Result, error) {
	return m.result, m.err
}

// hashEmbedder produces deterministic 8-dimensional vectors from text.
type hashEmbedder struct {
	dim        int
	err        error
	batchCalls atomic.Int32
	// block, when set, holds every batch until it is closed.
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (e *hashEmbedder) vector(text string) []float32 {
	dim := e.dim
	if dim == 0 {
		dim = 8
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32((seed>>(uint(i)*7))&0x7f) + 1
	}
	return v
}

func (e *hashEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: e.vector(text)}, nil
}

func (e *hashEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.batchCalls.Add(1)
	if e.started != nil {
		e.once.Do(func() { close(e.started) })
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return domain.BatchEmbeddingResult{}, ctx.Err()
		}
	}
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func mustDocs(t *testing.T, texts ...string) []document.Document {
	t.Helper()
	docs := make([]document.Document, len(texts))
	for i, text := range texts {
		d, err := document.New(string(rune('a'+i))+".txt", text, map[string]string{"source": "test"})
		if err != nil {
			t.Fatalf("document.New: %v", err)
		}
		docs[i] = d
	}
	return docs
}

func newTestService(
	t *testing.T, loader Loader, emb Embedder, opts ...Option,
) (*Service, *vectorindex.Index) {
	t.Helper()
	idx := vectorindex.New(vectorindex.MetricCosine)
	ch := chunker.New(chunker.WithMaxSize(40), chunker.WithOverlap(5))
	return New(loader, ch, emb, idx, opts...), idx
}
