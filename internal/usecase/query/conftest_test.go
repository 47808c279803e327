package query

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/usecase/retrieval"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// --- Mocks ---

// countingEmbedder maps known words to axes of a 3-dimensional space.
type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls.Add(1)
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: axisVector(text)}, nil
}

// blockingEmbedder never returns, not even on cancellation.
type blockingEmbedder struct{}

func (blockingEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	select {}
}

func axisVector(text string) []float32 {
	switch {
	case strings.Contains(text, "helium"):
		return []float32{1, 0.05, 0}
	case strings.Contains(text, "revenue"):
		return []float32{0.05, 1, 0}
	default:
		return []float32{0, 0.05, 1}
	}
}

type mockGenerator struct {
	calls    atomic.Int32
	text     string
	err      error
	delay    time.Duration
	panicMsg string
	// ignoreCtx makes the generator sleep through cancellation.
	ignoreCtx   bool
	lastContext atomic.Value
}

func (g *mockGenerator) Generate(ctx context.Context, _ string, contextText string) (domain.GenerationResult, error) {
	g.calls.Add(1)
	g.lastContext.Store(contextText)
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	if g.delay > 0 {
		if g.ignoreCtx {
			time.Sleep(g.delay)
		} else {
			select {
			case <-time.After(g.delay):
			case <-ctx.Done():
				return domain.GenerationResult{}, ctx.Err()
			}
		}
	}
	if g.err != nil {
		return domain.GenerationResult{}, g.err
	}
	return domain.GenerationResult{Text: g.text}, nil
}

func (g *mockGenerator) context() string {
	v, _ := g.lastContext.Load().(string)
	return v
}

// funcGenerator adapts a function to the Generator interface.
type funcGenerator func(ctx context.Context, question, contextText string) (domain.GenerationResult, error)

func (f funcGenerator) Generate(ctx context.Context, question, contextText string) (domain.GenerationResult, error) {
	return f(ctx, question, contextText)
}

type fixture struct {
	index     *vectorindex.Index
	embedder  *countingEmbedder
	generator *mockGenerator
	svc       *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	idx := vectorindex.New(vectorindex.MetricCosine)
	emb := &countingEmbedder{}
	gen := &mockGenerator{text: "Helium output grew 10%."}
	ret := retrieval.New(idx, emb, retrieval.DefaultDefaults(), nil)
	return &fixture{
		index:     idx,
		embedder:  emb,
		generator: gen,
		svc:       New(idx, nil, ret, gen, cfg, nil),
	}
}

// seed commits a snapshot with one helium and one revenue chunk.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	helium := chunk.New("report.pdf:3", 0, "helium production rose", map[string]string{
		"source": "report.pdf", "page_number": "3",
	})
	revenue := chunk.New("report.pdf:7", 0, "revenue was stable", map[string]string{
		"source": "report.pdf", "page_number": "7",
	})
	_, err := f.index.UpsertSnapshot(context.Background(), []chunk.Chunk{
		helium.WithEmbedding(axisVector("helium")),
		revenue.WithEmbedding(axisVector("revenue")),
	}, 1)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}
