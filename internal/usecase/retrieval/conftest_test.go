package retrieval

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// --- Mocks ---

type mockEmbedder struct {
	vectors map[string][]float32
	tokens  int
	err     error
	// failOn lists texts that fail to embed.
	failOn map[string]bool
	calls  atomic.Int32
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if m.failOn[text] {
		return domain.EmbeddingResult{}, domain.ErrEmbeddingProviderError
	}
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vectors[text], TotalTokens: m.tokens}, nil
}

// blockingEmbedder never returns, not even on cancellation.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	select {}
}

type mockGenerator struct {
	text  string
	err   error
	calls atomic.Int32
}

func (g *mockGenerator) Generate(context.Context, string, string) (domain.GenerationResult, error) {
	g.calls.Add(1)
	return domain.GenerationResult{Text: g.text}, g.err
}

type staticSource struct {
	snap *vectorindex.Snapshot
}

func (s staticSource) Current() *vectorindex.Snapshot { return s.snap }

type testChunk struct {
	doc  string
	vec  []float32
	meta map[string]string
}

func newTestSnapshot(t *testing.T, items ...testChunk) *vectorindex.Snapshot {
	t.Helper()
	chunks := make([]chunk.Chunk, len(items))
	for i, it := range items {
		c := chunk.New(it.doc, 0, "text of "+it.doc, it.meta)
		chunks[i] = c.WithEmbedding(it.vec)
	}
	snap, err := vectorindex.NewSnapshot("test", time.Now(), vectorindex.MetricCosine, len(items), chunks)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}
