package vectorindex

import (
	"context"
	"sync"

	"github.com/kailas-cloud/docqa/internal/domain/chunk"
)

// --- Mocks ---

type mockPersister struct {
	mu      sync.Mutex
	saved   []*Snapshot
	saveErr error
	loaded  *Snapshot
	loadErr error
}

func (m *mockPersister) Save(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *mockPersister) Load(_ context.Context) (*Snapshot, error) {
	return m.loaded, m.loadErr
}

// embedded builds a chunk of doc with the given embedding.
func embedded(doc string, ordinal int, meta map[string]string, v ...float32) chunk.Chunk {
	c := chunk.New(doc, ordinal, doc+" text", meta)
	return c.WithEmbedding(v)
}
