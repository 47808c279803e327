package chunk

import (
	"fmt"
	"maps"
	"strings"
)

// OrdinalKey is the metadata key carrying the chunk ordinal within its document.
const OrdinalKey = "chunk_ordinal"

// Chunk is a contiguous span of a document's text sized for retrieval.
// The embedding is attached once during indexing and never changed afterwards.
type Chunk struct {
	id         string
	documentID string
	ordinal    int
	text       string
	metadata   map[string]string
	embedding  []float32
}

// New creates a chunk without an embedding. metadata is inherited from the document.
func New(documentID string, ordinal int, text string, metadata map[string]string) Chunk {
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[OrdinalKey] = fmt.Sprintf("%d", ordinal)

	return Chunk{
		id:         MakeID(documentID, ordinal),
		documentID: documentID,
		ordinal:    ordinal,
		text:       text,
		metadata:   meta,
	}
}

// Reconstruct creates a Chunk without validation (storage hydration).
func Reconstruct(
	id, documentID string, ordinal int, text string,
	metadata map[string]string, embedding []float32,
) Chunk {
	return Chunk{
		id: id, documentID: documentID, ordinal: ordinal,
		text: text, metadata: metadata, embedding: embedding,
	}
}

// MakeID derives the stable chunk identifier from its document and ordinal.
func MakeID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s#%04d", documentID, ordinal)
}

// SplitID reverses MakeID. ok is false for identifiers not produced by MakeID.
func SplitID(id string) (documentID string, ordinal int, ok bool) {
	i := strings.LastIndexByte(id, '#')
	if i < 0 {
		return "", 0, false
	}
	if _, err := fmt.Sscanf(id[i+1:], "%d", &ordinal); err != nil {
		return "", 0, false
	}
	return id[:i], ordinal, true
}

// ID returns the chunk identifier.
func (c *Chunk) ID() string { return c.id }

// DocumentID returns the identifier of the owning document (lookup only).
func (c *Chunk) DocumentID() string { return c.documentID }

// Ordinal returns the zero-based position of the chunk within its document.
func (c *Chunk) Ordinal() int { return c.ordinal }

// Text returns the chunk text.
func (c *Chunk) Text() string { return c.text }

// Metadata returns a copy of the chunk metadata.
func (c *Chunk) Metadata() map[string]string { return maps.Clone(c.metadata) }

// MetadataMatcher evaluates a predicate over chunk metadata.
type MetadataMatcher interface {
	Matches(meta map[string]string) bool
}

// MatchesMetadata evaluates m against the metadata without copying it.
// m must not retain or modify the map.
func (c *Chunk) MatchesMetadata(m MetadataMatcher) bool { return m.Matches(c.metadata) }

// Embedding returns the embedding vector (nil before indexing).
func (c *Chunk) Embedding() []float32 { return c.embedding }

// WithEmbedding returns a copy with the given embedding set.
func (c *Chunk) WithEmbedding(v []float32) Chunk {
	return Chunk{
		id: c.id, documentID: c.documentID, ordinal: c.ordinal,
		text: c.text, metadata: c.metadata, embedding: v,
	}
}

// WithText returns a copy carrying text in place of the original passage.
// Identity, metadata and embedding are kept.
func (c *Chunk) WithText(text string) Chunk {
	return Chunk{
		id: c.id, documentID: c.documentID, ordinal: c.ordinal,
		text: text, metadata: c.metadata, embedding: c.embedding,
	}
}
