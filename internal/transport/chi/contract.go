package chi

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain/answer"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
	queryuc "github.com/kailas-cloud/docqa/internal/usecase/query"
)

// Asker answers questions and reports index status.
type Asker interface {
	Ask(ctx context.Context, question string) answer.Answer
	Status() queryuc.Status
}

// Indexer rebuilds the index from the corpus.
type Indexer interface {
	Rebuild(ctx context.Context, corpusPath string) (indexing.BuildResult, error)
	State() indexing.State
}

// Searcher runs retrieval without generation.
type Searcher interface {
	Retrieve(ctx context.Context, question string, k int) ([]result.Result, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
