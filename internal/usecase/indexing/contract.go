package indexing

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/domain/document"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// Loader reads a corpus into documents.
type Loader interface {
	Load(ctx context.Context, root string) (corpus.Result, error)
}

// Chunker splits a document into chunks without embeddings.
type Chunker interface {
	Chunk(doc document.Document) []chunk.Chunk
}

// Embedder vectorizes passages. BatchEmbed is used when the implementation supports it.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index receives the complete chunk set of a build.
type Index interface {
	UpsertSnapshot(ctx context.Context, chunks []chunk.Chunk, documentCount int) (*vectorindex.Snapshot, error)
	Stats() vectorindex.Stats
}
