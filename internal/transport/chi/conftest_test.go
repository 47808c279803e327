package chi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	"github.com/kailas-cloud/docqa/internal/domain/chunk"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
	queryuc "github.com/kailas-cloud/docqa/internal/usecase/query"
)

// --- Mocks ---

type mockAsker struct {
	mu       sync.Mutex
	answer   answer.Answer
	status   queryuc.Status
	asked    []string
	panicMsg string
}

func (m *mockAsker) Ask(_ context.Context, question string) answer.Answer {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, question)
	return m.answer
}

func (m *mockAsker) Status() queryuc.Status { return m.status }

type mockIndexer struct {
	mu     sync.Mutex
	result indexing.BuildResult
	err    error
	state  indexing.State
	paths  []string
	done   chan struct{}
}

func (m *mockIndexer) Rebuild(_ context.Context, corpusPath string) (indexing.BuildResult, error) {
	m.mu.Lock()
	m.paths = append(m.paths, corpusPath)
	m.mu.Unlock()
	if m.done != nil {
		defer close(m.done)
	}
	return m.result, m.err
}

func (m *mockIndexer) State() indexing.State {
	if m.state == "" {
		return indexing.StateReady
	}
	return m.state
}

func (m *mockIndexer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paths)
}

type mockSearcher struct {
	hits   []result.Result
	tokens int
	err    error
	gotQ   string
	gotK   int
	calls  int
}

func (m *mockSearcher) Retrieve(ctx context.Context, q string, k int) ([]result.Result, error) {
	if m.tokens > 0 {
		domain.UsageFromContext(ctx).AddTokens(m.tokens)
	}
	m.calls++
	m.gotQ, m.gotK = q, k
	return m.hits, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

// --- Fixtures ---

type fixture struct {
	asker    *mockAsker
	indexer  *mockIndexer
	searcher *mockSearcher
	health   *mockHealth
	handler  http.Handler
}

func newFixture(adminKeys ...string) *fixture {
	f := &fixture{
		asker:    &mockAsker{},
		indexer:  &mockIndexer{},
		searcher: &mockSearcher{},
		health: &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"index": healthuc.CheckOK},
		}},
	}
	srv := NewServer(f.asker, f.indexer, f.searcher, f.health, "/data/corpus", time.Minute, zap.NewNop())
	f.handler = NewRouter(srv, adminKeys, zap.NewNop())
	return f
}

func testHit(ordinal int, score float64) result.Result {
	c := chunk.New("report.pdf", ordinal, "helium production rose", map[string]string{"page_number": "3"})
	return result.New(c, score)
}
