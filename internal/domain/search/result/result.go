package result

import "github.com/kailas-cloud/docqa/internal/domain/chunk"

// Result is a single retrieval hit: a chunk and its similarity score
// (higher is closer for every metric).
type Result struct {
	chunk chunk.Chunk
	score float64
}

// New creates a retrieval result.
func New(c chunk.Chunk, score float64) Result {
	return Result{chunk: c, score: score}
}

// Chunk returns the matched chunk.
func (r *Result) Chunk() chunk.Chunk { return r.chunk }

// ID returns the chunk identifier.
func (r *Result) ID() string { return r.chunk.ID() }

// DocumentID returns the identifier of the chunk's document.
func (r *Result) DocumentID() string { return r.chunk.DocumentID() }

// Score returns the similarity score.
func (r *Result) Score() float64 { return r.score }

// Text returns the chunk text.
func (r *Result) Text() string { return r.chunk.Text() }

// Metadata returns a copy of the chunk metadata.
func (r *Result) Metadata() map[string]string { return r.chunk.Metadata() }

// Vector returns the chunk embedding.
func (r *Result) Vector() []float32 { return r.chunk.Embedding() }

// WithText returns a copy of the result whose chunk text is replaced.
func (r *Result) WithText(text string) Result {
	return Result{chunk: r.chunk.WithText(text), score: r.score}
}
