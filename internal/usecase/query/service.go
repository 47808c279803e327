package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/answer"
	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
)

// Status is a read-only view of the index.
type Status struct {
	Initialized   bool
	State         indexing.State
	DocumentCount int
	ChunkCount    int
	Dimension     int
	BuildID       string
	BuiltAt       time.Time
}

// Service answers questions against the active snapshot.
type Service struct {
	index     Index
	states    StateReporter
	retriever Retriever
	generator Generator
	// compressor trims retrieved passages; nil keeps them whole.
	compressor Generator
	cfg        Config
	logger     *zap.Logger
}

// Option configures the service.
type Option func(*Service)

// WithCompressor trims every retrieved passage to the parts relevant to the
// question before the context is assembled. Passages it finds irrelevant are dropped.
func WithCompressor(g Generator) Option {
	return func(s *Service) { s.compressor = g }
}

// New creates a query service. states may be nil.
func New(
	index Index, states StateReporter, retriever Retriever, generator Generator,
	cfg Config, l *zap.Logger, opts ...Option,
) *Service {
	cfg.applyDefaults()
	if l == nil {
		l = zap.NewNop()
	}
	s := &Service{
		index:     index,
		states:    states,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		logger:    l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers question. It never panics and never returns a Go error: every
// failure is folded into an error Answer with its kind.
func (s *Service) Ask(ctx context.Context, question string) (ans answer.Answer) {
	start := time.Now()
	log := logger.FromContextOr(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Ask panicked", zap.Any("panic", r), zap.Stack("stack"))
			ans = answer.Failure(answer.KindInternal, "internal error")
		}
		metrics.RecordAsk(string(ans.Status()), string(ans.Kind()), time.Since(start))
	}()

	q := strings.TrimSpace(question)
	if q == "" {
		return answer.Failure(answer.KindValidation, "empty question")
	}
	if matchAny(s.cfg.SmalltalkPatterns, q) {
		return answer.Success(s.cfg.SmalltalkReply, nil)
	}

	// one snapshot for the whole call, even if a rebuild swaps it meanwhile
	snap := s.index.Current()
	if snap == nil {
		return answer.FromError(domain.ErrNotReady)
	}

	filters := filter.Expression{}
	if s.cfg.Scope.Matches(q) {
		filters = s.cfg.Scope.Filter
	}

	req, err := s.retriever.NewRequest(q, s.cfg.K, filters)
	if err != nil {
		return answer.FromError(err)
	}

	hits, err := s.retriever.RetrieveFrom(ctx, snap, req)
	if err != nil {
		log.Warn("Retrieval failed", zap.String("build_id", snap.ID()), zap.Error(err))
		return answer.FromError(err)
	}
	if s.compressor != nil && len(hits) > 0 {
		hits = s.compress(ctx, q, hits)
	}
	if len(hits) == 0 {
		return answer.Success(s.cfg.NoContextReply, nil)
	}

	contextText := BuildContext(hits, s.cfg.Headers, s.cfg.MaxContextChars)

	res, err := s.generate(ctx, s.generator, q, contextText)
	if err != nil {
		log.Warn("Generation failed", zap.Error(err))
		return answer.FromError(err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return answer.Failure(answer.KindCapability, "generator returned an empty answer")
	}

	log.Debug("Answered question",
		zap.String("build_id", snap.ID()),
		zap.Int("hits", len(hits)),
		zap.Int("context_chars", utf8.RuneCountInString(contextText)),
	)
	return answer.Success(text, sources(hits))
}

// Status reports whether the index is ready and its counters.
func (s *Service) Status() Status {
	st := Status{State: indexing.StateUninitialized}
	if snap := s.index.Current(); snap != nil {
		st.Initialized = true
		st.State = indexing.StateReady
		st.DocumentCount = snap.DocumentCount()
		st.ChunkCount = snap.ChunkCount()
		st.Dimension = snap.Dimension()
		st.BuildID = snap.ID()
		st.BuiltAt = snap.BuiltAt()
	}
	if s.states != nil {
		st.State = s.states.State()
	}
	return st
}

type generation struct {
	res domain.GenerationResult
	err error
}

// generate calls gen under the configured timeout. A generator that
// ignores cancellation is abandoned and its late result discarded.
func (s *Service) generate(
	ctx context.Context, gen Generator, question, contextText string,
) (domain.GenerationResult, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("%w: generator panic: %v", domain.ErrGenerationProviderError, r)}
			}
		}()
		res, err := gen.Generate(gctx, question, contextText)
		done <- generation{res: res, err: err}
	}()

	select {
	case g := <-done:
		if g.err == nil {
			return g.res, nil
		}
		if errors.Is(g.err, context.DeadlineExceeded) {
			return domain.GenerationResult{}, fmt.Errorf("%w: %w", domain.ErrCapabilityTimeout, g.err)
		}
		if !domain.IsCapabilityError(g.err) {
			return domain.GenerationResult{}, fmt.Errorf("%w: %w", domain.ErrGenerationProviderError, g.err)
		}
		return domain.GenerationResult{}, g.err
	case <-gctx.Done():
		return domain.GenerationResult{}, fmt.Errorf("%w: generation after %s: %w",
			domain.ErrCapabilityTimeout, s.cfg.GenerationTimeout, gctx.Err())
	}
}

func sources(hits []result.Result) []answer.Source {
	out := make([]answer.Source, len(hits))
	for i := range hits {
		out[i] = answer.Source{
			ChunkID:    hits[i].ID(),
			DocumentID: hits[i].DocumentID(),
			Score:      hits[i].Score(),
			Metadata:   hits[i].Metadata(),
		}
	}
	return out
}
