package retrieval

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// Embedder vectorizes the question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// SnapshotSource exposes the active index snapshot.
type SnapshotSource interface {
	Current() *vectorindex.Snapshot
}

// Generator writes text for a question; used to rephrase it for search.
type Generator interface {
	Generate(ctx context.Context, question, context string) (domain.GenerationResult, error)
}
