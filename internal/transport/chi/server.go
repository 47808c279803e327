// Package chi exposes the question-answering service over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	"github.com/kailas-cloud/docqa/internal/logger"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
)

const (
	maxBodyBytes          = 1 << 20
	defaultRebuildTimeout = 30 * time.Minute
)

// Server holds the HTTP handlers.
type Server struct {
	query          Asker
	indexer        Indexer
	searcher       Searcher
	health         HealthChecker
	corpusPath     string
	rebuildTimeout time.Duration
	logger         *zap.Logger
}

// NewServer creates an HTTP API server. rebuildTimeout <= 0 selects a 30 minute default.
func NewServer(
	query Asker, indexer Indexer, searcher Searcher, health HealthChecker,
	corpusPath string, rebuildTimeout time.Duration, l *zap.Logger,
) *Server {
	if rebuildTimeout <= 0 {
		rebuildTimeout = defaultRebuildTimeout
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		query:          query,
		indexer:        indexer,
		searcher:       searcher,
		health:         health,
		corpusPath:     corpusPath,
		rebuildTimeout: rebuildTimeout,
		logger:         l,
	}
}

// Ask handles POST /api/ask. Every outcome, including a malformed body, is a 200.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusOK, AskResponse{
			Status:    statusError,
			Error:     "invalid request body",
			ErrorKind: string(answer.KindValidation),
		})
		return
	}
	if req.Question == nil {
		writeJSON(w, http.StatusOK, AskResponse{
			Status:    statusError,
			Error:     "question is required",
			ErrorKind: string(answer.KindValidation),
		})
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans := s.query.Ask(ctx, *req.Question)
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, askResponse(*req.Question, ans))
}

// Status handles GET /api/status.
func (s *Server) Status(w http.ResponseWriter, _ *http.Request) {
	st := s.query.Status()
	resp := StatusResponse{
		RAGInitialized:     st.Initialized,
		State:              string(st.State),
		DocumentCount:      st.DocumentCount,
		ChunkCount:         st.ChunkCount,
		EmbeddingDimension: st.Dimension,
		BuildID:            st.BuildID,
	}
	if !st.BuiltAt.IsZero() {
		builtAt := st.BuiltAt.UTC()
		resp.BuiltAt = &builtAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rebuild handles POST /api/rebuild and its alias POST /api/process-json.
// ?wait=false starts the rebuild in the background.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	var wait *bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		writeJSON(w, http.StatusOK, RebuildResponse{
			Status:    statusError,
			Message:   "invalid wait parameter",
			ErrorKind: string(answer.KindValidation),
		})
		return
	}

	// detached from the client connection but keeps the request logger
	ctx := context.WithoutCancel(r.Context())

	if wait != nil && !*wait {
		if s.indexer.State() == indexing.StateIndexing {
			writeJSON(w, http.StatusOK, rebuildFailure(domain.ErrRebuildInProgress))
			return
		}
		go s.rebuildInBackground(ctx)
		writeJSON(w, http.StatusOK, RebuildResponse{Status: statusSuccess, Message: "rebuild started"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.rebuildTimeout)
	defer cancel()

	res, err := s.indexer.Rebuild(ctx, s.corpusPath)
	if err != nil {
		writeJSON(w, http.StatusOK, rebuildFailure(err))
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{
		Status:        statusSuccess,
		Message:       fmt.Sprintf("index rebuilt: %d documents, %d chunks", res.DocumentCount, res.ChunkCount),
		BuildID:       res.BuildID,
		DocumentCount: &res.DocumentCount,
		ChunkCount:    &res.ChunkCount,
		Skipped:       &res.SkippedCount,
	})
}

func (s *Server) rebuildInBackground(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.rebuildTimeout)
	defer cancel()

	if _, err := s.indexer.Rebuild(ctx, s.corpusPath); err != nil {
		logger.FromContextOr(ctx, s.logger).Warn("Background rebuild failed", zap.Error(err))
	}
}

// Search handles GET /api/search?q=...&k=...
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var (
		q string
		k *int
	)
	if err := runtime.BindQueryParameter("form", true, true, "q", r.URL.Query(), &q); err != nil {
		writeJSON(w, http.StatusOK, searchFailure(fmt.Errorf("%w: q is required", domain.ErrValidation)))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "k", r.URL.Query(), &k); err != nil {
		writeJSON(w, http.StatusOK, searchFailure(fmt.Errorf("%w: k must be an integer", domain.ErrValidation)))
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	hits, err := s.searcher.Retrieve(ctx, q, derefInt(k))
	setEmbeddingHeaders(w, usage)
	if err != nil {
		logger.FromContextOr(r.Context(), s.logger).Warn("search failed", zap.Error(err))
		writeJSON(w, http.StatusOK, searchFailure(err))
		return
	}

	resp := SearchResponse{Status: statusSuccess, Hits: make([]SearchHit, 0, len(hits))}
	for i := range hits {
		resp.Hits = append(resp.Hits, searchHit(&hits[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body: %w", err)
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func askResponse(question string, ans answer.Answer) AskResponse {
	if !ans.OK() {
		return AskResponse{
			Status:    statusError,
			Question:  question,
			Error:     ans.Detail(),
			ErrorKind: string(ans.Kind()),
		}
	}
	resp := AskResponse{
		Status:   statusSuccess,
		Question: question,
		Answer:   ans.Text(),
		Sources:  make([]SourceResponse, 0, len(ans.Sources())),
	}
	for _, src := range ans.Sources() {
		resp.Sources = append(resp.Sources, SourceResponse{
			ChunkID:    src.ChunkID,
			DocumentID: src.DocumentID,
			Score:      src.Score,
			Metadata:   src.Metadata,
		})
	}
	return resp
}

func rebuildFailure(err error) RebuildResponse {
	return RebuildResponse{
		Status:    statusError,
		Message:   err.Error(),
		ErrorKind: string(answer.KindOf(err)),
	}
}

func searchFailure(err error) SearchResponse {
	return SearchResponse{
		Status:    statusError,
		Hits:      []SearchHit{},
		Error:     err.Error(),
		ErrorKind: string(answer.KindOf(err)),
	}
}

func searchHit(r *result.Result) SearchHit {
	return SearchHit{
		ChunkID:    r.ID(),
		DocumentID: r.DocumentID(),
		Score:      r.Score(),
		Text:       r.Text(),
		Metadata:   r.Metadata(),
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.Tokens()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
