package query

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
	"github.com/kailas-cloud/docqa/internal/domain/search/request"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// Retriever finds relevant chunks in a pinned snapshot.
type Retriever interface {
	NewRequest(question string, k int, filters filter.Expression) (request.Request, error)
	RetrieveFrom(ctx context.Context, snap *vectorindex.Snapshot, req request.Request) ([]result.Result, error)
}

// Index exposes the active snapshot.
type Index interface {
	Current() *vectorindex.Snapshot
}

// StateReporter reports the indexing lifecycle state.
type StateReporter interface {
	State() indexing.State
}

// Generator produces the answer text from question and context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (domain.GenerationResult, error)
}
