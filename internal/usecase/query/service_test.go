package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/corpus"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
	"github.com/kailas-cloud/docqa/internal/domain/search/request"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
	"github.com/kailas-cloud/docqa/internal/usecase/retrieval"
)

func TestAsk_EmptyQuestionTouchesNoBackend(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)

	for _, q := range []string{"", "   ", "\n\t"} {
		ans := f.svc.Ask(context.Background(), q)
		if ans.Status() != answer.StatusError || ans.Kind() != answer.KindValidation {
			t.Errorf("Ask(%q) = %s/%s, want error/validation", q, ans.Status(), ans.Kind())
		}
		if ans.Detail() != "empty question" {
			t.Errorf("unexpected detail %q", ans.Detail())
		}
	}
	if f.embedder.calls.Load() != 0 || f.generator.calls.Load() != 0 {
		t.Errorf("backends called: embed=%d generate=%d", f.embedder.calls.Load(), f.generator.calls.Load())
	}
}

func TestAsk_NotReady(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	ans := f.svc.Ask(context.Background(), "what about helium?")
	if ans.Kind() != answer.KindNotReady || ans.Detail() != "index not ready" {
		t.Errorf("got %s/%q, want not_ready/index not ready", ans.Kind(), ans.Detail())
	}
	if f.embedder.calls.Load() != 0 {
		t.Error("embedder must not be called before the index is ready")
	}
}

func TestAsk_Success(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)

	ans := f.svc.Ask(context.Background(), "how much helium?")
	if !ans.OK() {
		t.Fatalf("expected success, got %s: %s", ans.Kind(), ans.Detail())
	}
	if ans.Text() != "Helium output grew 10%." {
		t.Errorf("unexpected text %q", ans.Text())
	}
	if ans.Detail() != "" || ans.Kind() != answer.KindNone {
		t.Error("success must not carry error fields")
	}
	if len(ans.Sources()) == 0 || ans.Sources()[0].DocumentID != "report.pdf:3" {
		t.Errorf("expected helium chunk first, got %+v", ans.Sources())
	}
	if !strings.HasPrefix(f.generator.context(), "[p.3 • report.pdf] helium production rose") {
		t.Errorf("unexpected context %q", f.generator.context())
	}
}

func TestAsk_Smalltalk(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	for _, q := range []string{"Hello there", "привет!", "Who are you?"} {
		ans := f.svc.Ask(context.Background(), q)
		if !ans.OK() || ans.Text() != DefaultSmalltalkReply {
			t.Errorf("Ask(%q) = %s %q", q, ans.Status(), ans.Text())
		}
	}
	if f.embedder.calls.Load() != 0 || f.generator.calls.Load() != 0 {
		t.Error("small talk must not reach any backend")
	}
}

func TestAsk_EmptyRetrievalUsesNoContextReply(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if _, err := f.index.UpsertSnapshot(context.Background(), nil, 0); err != nil {
		t.Fatal(err)
	}

	ans := f.svc.Ask(context.Background(), "anything")
	if !ans.OK() || ans.Text() != DefaultNoContextReply {
		t.Errorf("got %s %q", ans.Status(), ans.Text())
	}
	if f.generator.calls.Load() != 0 {
		t.Error("generator must not be called without context")
	}
}

func TestAsk_EmbedderFailureIsCapability(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)
	f.embedder.err = domain.ErrEmbeddingProviderError

	ans := f.svc.Ask(context.Background(), "helium?")
	if ans.Kind() != answer.KindCapability {
		t.Errorf("expected capability, got %s (%s)", ans.Kind(), ans.Detail())
	}
}

func TestAsk_EmbedderTimeout(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)
	d := retrieval.DefaultDefaults()
	d.EmbedTimeout = 100 * time.Millisecond
	ret := retrieval.New(f.index, blockingEmbedder{}, d, nil)
	svc := New(f.index, nil, ret, f.generator, DefaultConfig(), nil)

	start := time.Now()
	ans := svc.Ask(context.Background(), "helium?")
	elapsed := time.Since(start)

	if ans.Kind() != answer.KindCapability {
		t.Errorf("expected capability, got %s (%s)", ans.Kind(), ans.Detail())
	}
	if elapsed > 2*time.Second {
		t.Errorf("Ask took %s, expected about %s", elapsed, d.EmbedTimeout)
	}
	if f.generator.calls.Load() != 0 {
		t.Error("generator must not be called when the question cannot be embedded")
	}
}

func TestAsk_GeneratorFailureIsCapability(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)
	f.generator.err = errors.New("upstream 500")

	ans := f.svc.Ask(context.Background(), "helium?")
	if ans.Kind() != answer.KindCapability || !strings.Contains(ans.Detail(), "upstream 500") {
		t.Errorf("got %s %q", ans.Kind(), ans.Detail())
	}
}

func TestAsk_EmptyGeneratorOutput(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)
	f.generator.text = "   "

	ans := f.svc.Ask(context.Background(), "helium?")
	if ans.Kind() != answer.KindCapability {
		t.Errorf("expected capability for empty output, got %s", ans.Kind())
	}
}

func TestAsk_GeneratorTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GenerationTimeout = 100 * time.Millisecond
	f := newFixture(t, cfg)
	f.seed(t)
	f.generator.delay = 2 * time.Second
	f.generator.ignoreCtx = true

	start := time.Now()
	ans := f.svc.Ask(context.Background(), "helium?")
	elapsed := time.Since(start)

	if ans.Kind() != answer.KindCapability {
		t.Errorf("expected capability, got %s (%s)", ans.Kind(), ans.Detail())
	}
	if elapsed > cfg.GenerationTimeout+500*time.Millisecond {
		t.Errorf("Ask took %s, expected about %s", elapsed, cfg.GenerationTimeout)
	}
}

func TestAsk_GeneratorPanicIsRecovered(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)
	f.generator.panicMsg = "boom"

	ans := f.svc.Ask(context.Background(), "helium?")
	if ans.OK() {
		t.Fatal("expected error answer")
	}
	if ans.Kind() != answer.KindCapability {
		t.Errorf("expected capability, got %s", ans.Kind())
	}
}

type panickingRetriever struct{ Retriever }

func (panickingRetriever) NewRequest(string, int, filter.Expression) (request.Request, error) {
	panic("retriever exploded")
}

func TestAsk_PanicBecomesInternal(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t)
	svc := New(f.index, nil, panickingRetriever{}, f.generator, DefaultConfig(), nil)

	ans := svc.Ask(context.Background(), "helium?")
	if ans.Kind() != answer.KindInternal || ans.Detail() != "internal error" {
		t.Errorf("got %s %q", ans.Kind(), ans.Detail())
	}
}

func TestAsk_ScopedFilterWithFallback(t *testing.T) {
	cfg := DefaultConfig()
	patterns, err := CompilePatterns([]string{`\breport\b`})
	if err != nil {
		t.Fatal(err)
	}
	onlyPage7, err := filter.FromMap(map[string]string{"page_number": "7"})
	if err != nil {
		t.Fatal(err)
	}
	cfg.Scope = Scope{Patterns: patterns, Filter: onlyPage7}
	f := newFixture(t, cfg)
	f.seed(t)

	ans := f.svc.Ask(context.Background(), "report: helium?")
	if !ans.OK() {
		t.Fatalf("unexpected error %s", ans.Detail())
	}
	for _, s := range ans.Sources() {
		if s.Metadata["page_number"] != "7" {
			t.Errorf("scoped question returned page %s", s.Metadata["page_number"])
		}
	}

	ans = f.svc.Ask(context.Background(), "helium?")
	if ans.Sources()[0].Metadata["page_number"] != "3" {
		t.Error("unscoped question should rank helium first")
	}
}

func TestStatus_BeforeAndAfterRebuild(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	st := f.svc.Status()
	if st.Initialized || st.DocumentCount != 0 || st.ChunkCount != 0 {
		t.Errorf("unexpected status before build: %+v", st)
	}
	if st.State != indexing.StateUninitialized {
		t.Errorf("expected uninitialized, got %q", st.State)
	}

	f.seed(t)
	st = f.svc.Status()
	if !st.Initialized || st.DocumentCount != 1 || st.ChunkCount != 2 || st.Dimension != 3 {
		t.Errorf("unexpected status after build: %+v", st)
	}
	if st.State != indexing.StateReady || st.BuildID == "" || st.BuiltAt.IsZero() {
		t.Errorf("unexpected status after build: %+v", st)
	}
	if f.embedder.calls.Load() != 0 {
		t.Error("status must be a pure read")
	}
}

func TestAsk_ConcurrentDuringRebuild(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"helium.txt":  "helium production rose",
		"revenue.txt": "revenue was stable",
	}
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	f := newFixture(t, DefaultConfig())
	indexer := indexing.New(corpus.NewLoader(nil), chunker.New(), f.embedder, f.index)
	if _, err := indexer.Rebuild(context.Background(), dir); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}
	firstBuild := f.index.Current().ID()

	var wg sync.WaitGroup
	results := make([]answer.Answer, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.svc.Ask(context.Background(), "helium?")
		}()
	}

	// rebuild through load, embed and commit while asks are in flight
	for range 3 {
		if _, err := indexer.Rebuild(context.Background(), dir); err != nil {
			t.Errorf("rebuild during asks: %v", err)
		}
	}
	wg.Wait()

	for i, ans := range results {
		if !ans.OK() {
			t.Errorf("ask %d failed: %s %s", i, ans.Kind(), ans.Detail())
			continue
		}
		if len(ans.Sources()) == 0 {
			t.Errorf("ask %d returned no sources", i)
		}
	}
	if f.index.Current().ID() == firstBuild {
		t.Error("expected rebuilds to publish a new snapshot")
	}
}
