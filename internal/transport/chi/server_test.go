package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
	queryuc "github.com/kailas-cloud/docqa/internal/usecase/query"
)

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAsk_Success(t *testing.T) {
	f := newFixture()
	hit := testHit(0, 0.91)
	f.asker.answer = answer.Success("Helium output rose 12%.", []answer.Source{{
		ChunkID: hit.ID(), DocumentID: hit.DocumentID(), Score: hit.Score(), Metadata: hit.Metadata(),
	}})

	rr := do(t, f.handler, http.MethodPost, "/api/ask", `{"question":"How did helium change?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	resp := decode[AskResponse](t, rr)
	if resp.Status != "success" || resp.Answer != "Helium output rose 12%." {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Question != "How did helium change?" {
		t.Errorf("question not echoed: %q", resp.Question)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ChunkID != "report.pdf#0000" {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if resp.Error != "" || resp.ErrorKind != "" {
		t.Errorf("success must not carry error fields: %+v", resp)
	}
}

func TestAsk_ErrorAnswerIs200(t *testing.T) {
	f := newFixture()
	f.asker.answer = answer.FromError(domain.ErrNotReady)

	rr := do(t, f.handler, http.MethodPost, "/api/ask", `{"question":"anything"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[AskResponse](t, rr)
	if resp.Status != "error" || resp.ErrorKind != "not_ready" || resp.Error != "index not ready" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Answer != "" {
		t.Errorf("error must not carry an answer: %q", resp.Answer)
	}
}

func TestAsk_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"question":`, "invalid request body"},
		{"empty body", "", "invalid request body"},
		{"missing field", `{"q":"hi"}`, "question is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			rr := do(t, f.handler, http.MethodPost, "/api/ask", tc.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			resp := decode[AskResponse](t, rr)
			if resp.Status != "error" || resp.ErrorKind != "validation" || resp.Error != tc.want {
				t.Errorf("unexpected response: %+v", resp)
			}
			if len(f.asker.asked) != 0 {
				t.Error("query service must not be called")
			}
		})
	}
}

func TestAsk_EmptyQuestionReachesService(t *testing.T) {
	f := newFixture()
	f.asker.answer = answer.Failure(answer.KindValidation, "empty question")

	rr := do(t, f.handler, http.MethodPost, "/api/ask", `{"question":"   "}`)
	resp := decode[AskResponse](t, rr)
	if resp.Error != "empty question" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(f.asker.asked) != 1 {
		t.Errorf("expected one call, got %d", len(f.asker.asked))
	}
}

func TestAsk_PanicRecovered(t *testing.T) {
	f := newFixture()
	f.asker.panicMsg = "boom"

	rr := do(t, f.handler, http.MethodPost, "/api/ask", `{"question":"hi"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Code != "internal_error" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestStatus(t *testing.T) {
	t.Run("before build", func(t *testing.T) {
		f := newFixture()
		f.asker.status = queryuc.Status{State: indexing.StateUninitialized}

		resp := decode[map[string]any](t, do(t, f.handler, http.MethodGet, "/api/status", ""))
		if resp["rag_initialized"] != false || resp["state"] != "uninitialized" {
			t.Errorf("unexpected response: %v", resp)
		}
		if _, ok := resp["built_at"]; ok {
			t.Error("built_at must be omitted before the first build")
		}
	})

	t.Run("ready", func(t *testing.T) {
		f := newFixture()
		built := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		f.asker.status = queryuc.Status{
			Initialized: true, State: indexing.StateReady,
			DocumentCount: 3, ChunkCount: 12, Dimension: 1536, BuildID: "b1", BuiltAt: built,
		}

		resp := decode[StatusResponse](t, do(t, f.handler, http.MethodGet, "/api/status", ""))
		if !resp.RAGInitialized || resp.DocumentCount != 3 || resp.ChunkCount != 12 || resp.EmbeddingDimension != 1536 {
			t.Errorf("unexpected response: %+v", resp)
		}
		if resp.BuiltAt == nil || !resp.BuiltAt.Equal(built) {
			t.Errorf("built_at = %v", resp.BuiltAt)
		}
	})
}

func TestRebuild_Sync(t *testing.T) {
	f := newFixture()
	f.indexer.result = indexing.BuildResult{BuildID: "b2", DocumentCount: 2, ChunkCount: 9, SkippedCount: 1}

	for _, path := range []string{"/api/rebuild", "/api/process-json"} {
		rr := do(t, f.handler, http.MethodPost, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rr.Code)
		}
		resp := decode[RebuildResponse](t, rr)
		if resp.Status != "success" || resp.BuildID != "b2" {
			t.Errorf("%s: unexpected response: %+v", path, resp)
		}
		if resp.DocumentCount == nil || *resp.DocumentCount != 2 || resp.Skipped == nil || *resp.Skipped != 1 {
			t.Errorf("%s: counters = %+v", path, resp)
		}
	}
	if f.indexer.calls() != 2 || f.indexer.paths[0] != "/data/corpus" {
		t.Errorf("rebuild calls = %v", f.indexer.paths)
	}
}

func TestRebuild_Failure(t *testing.T) {
	f := newFixture()
	f.indexer.err = domain.NewIndexBuildError("load", fmt.Errorf("%w: /data/corpus", domain.ErrCorpusUnreadable))

	resp := decode[RebuildResponse](t, do(t, f.handler, http.MethodPost, "/api/rebuild?wait=true", ""))
	if resp.Status != "error" || resp.ErrorKind != "index_build" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "corpus unreadable") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestRebuild_Async(t *testing.T) {
	f := newFixture()
	f.indexer.done = make(chan struct{})

	resp := decode[RebuildResponse](t, do(t, f.handler, http.MethodPost, "/api/rebuild?wait=false", ""))
	if resp.Status != "success" || resp.Message != "rebuild started" {
		t.Errorf("unexpected response: %+v", resp)
	}

	select {
	case <-f.indexer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background rebuild did not run")
	}
}

func TestRebuild_AsyncWhileIndexing(t *testing.T) {
	f := newFixture()
	f.indexer.state = indexing.StateIndexing

	resp := decode[RebuildResponse](t, do(t, f.handler, http.MethodPost, "/api/rebuild?wait=false", ""))
	if resp.Status != "error" || !strings.Contains(resp.Message, domain.ErrRebuildInProgress.Error()) {
		t.Errorf("unexpected response: %+v", resp)
	}
	if f.indexer.calls() != 0 {
		t.Error("rebuild must not start")
	}
}

func TestRebuild_InvalidWait(t *testing.T) {
	f := newFixture()
	resp := decode[RebuildResponse](t, do(t, f.handler, http.MethodPost, "/api/rebuild?wait=maybe", ""))
	if resp.Status != "error" || resp.ErrorKind != "validation" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRebuild_RequiresAdminKey(t *testing.T) {
	f := newFixture("admin-secret")

	if rr := do(t, f.handler, http.MethodPost, "/api/rebuild", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d", rr.Code)
	}
	if rr := do(t, f.handler, http.MethodPost, "/api/process-json", "",
		"Authorization", "Bearer admin-secret"); rr.Code != http.StatusOK {
		t.Errorf("with key: status = %d", rr.Code)
	}
	// read routes stay open
	if rr := do(t, f.handler, http.MethodGet, "/api/status", ""); rr.Code != http.StatusOK {
		t.Errorf("status route: %d", rr.Code)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture()
	f.searcher.hits = append(f.searcher.hits, testHit(0, 0.9), testHit(1, 0.5))

	resp := decode[SearchResponse](t, do(t, f.handler, http.MethodGet, "/api/search?q=helium&k=2", ""))
	if resp.Status != "success" || len(resp.Hits) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Hits[0].ChunkID != "report.pdf#0000" || resp.Hits[0].Text != "helium production rose" {
		t.Errorf("hit = %+v", resp.Hits[0])
	}
	if f.searcher.gotQ != "helium" || f.searcher.gotK != 2 {
		t.Errorf("searcher got q=%q k=%d", f.searcher.gotQ, f.searcher.gotK)
	}
}

func TestSearch_EmbeddingTokensHeader(t *testing.T) {
	f := newFixture()
	f.searcher.tokens = 7

	rr := do(t, f.handler, http.MethodGet, "/api/search?q=helium", "")
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "7" {
		t.Errorf("X-Embedding-Tokens = %q, want 7", got)
	}

	f.searcher.tokens = 0
	rr = do(t, f.handler, http.MethodGet, "/api/search?q=helium", "")
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "" {
		t.Errorf("expected no header without embedding, got %q", got)
	}
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"missing q", "/api/search"},
		{"bad k", "/api/search?q=helium&k=two"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			resp := decode[SearchResponse](t, do(t, f.handler, http.MethodGet, tc.target, ""))
			if resp.Status != "error" || resp.ErrorKind != "validation" {
				t.Errorf("unexpected response: %+v", resp)
			}
			if f.searcher.calls != 0 {
				t.Error("searcher must not be called")
			}
		})
	}
}

func TestSearch_NotReady(t *testing.T) {
	f := newFixture()
	f.searcher.err = domain.ErrNotReady

	rr := do(t, f.handler, http.MethodGet, "/api/search?q=helium", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[SearchResponse](t, rr)
	if resp.ErrorKind != "not_ready" || resp.Hits == nil {
		t.Errorf("unexpected response: %+v", resp)
	}
	if f.searcher.gotK != 0 {
		t.Errorf("absent k must pass 0, got %d", f.searcher.gotK)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture()
	rr := do(t, f.handler, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("healthy: status = %d", rr.Code)
	}

	f.health.report = healthuc.Report{
		Status: healthuc.Unhealthy,
		Checks: map[string]healthuc.CheckResult{"index": healthuc.CheckNotReady},
	}
	rr = do(t, f.handler, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: status = %d", rr.Code)
	}
	resp := decode[HealthResponse](t, rr)
	if resp.Checks["index"] != "not_ready" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestMetricsAndNotFound(t *testing.T) {
	f := newFixture("admin-secret")

	do(t, f.handler, http.MethodGet, "/api/status", "")
	rr := do(t, f.handler, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics must not require auth: status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "docqa_http_requests_total") {
		t.Error("expected http metrics in /metrics output")
	}

	rr = do(t, f.handler, http.MethodGet, "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("not found: status = %d", rr.Code)
	}
	if rr = do(t, f.handler, http.MethodGet, "/api/ask", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("method not allowed: status = %d", rr.Code)
	}
}

func TestAskResponse_ErrorsAreExclusive(t *testing.T) {
	resp := askResponse("q", answer.FromError(errors.New("boom")))
	if resp.Answer != "" || resp.Sources != nil || resp.ErrorKind != "internal" {
		t.Errorf("unexpected response: %+v", resp)
	}
}
