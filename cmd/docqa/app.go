package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/config"
	"github.com/kailas-cloud/docqa/internal/corpus"
	dbRedis "github.com/kailas-cloud/docqa/internal/db/redis"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
	"github.com/kailas-cloud/docqa/internal/domain/search/mode"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/prompt"
	"github.com/kailas-cloud/docqa/internal/repository/embcache"
	"github.com/kailas-cloud/docqa/internal/repository/snapshot"
	"github.com/kailas-cloud/docqa/internal/transport/gemini"
	openaiTransport "github.com/kailas-cloud/docqa/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/docqa/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/indexing"
	queryuc "github.com/kailas-cloud/docqa/internal/usecase/query"
	"github.com/kailas-cloud/docqa/internal/usecase/retrieval"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// app is the composition root shared by every command.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	index     *vectorindex.Index
	indexer   *indexing.Service
	retriever *retrieval.Service
	query     *queryuc.Service
	health    *healthuc.Service
	geminiGen *genai.Client
	closers   []func()
}

func registerMetrics() {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterRAGMetrics()
}

// openIndex restores the persisted snapshot. A corrupt snapshot leaves the index
// empty so the next rebuild can replace it.
func openIndex(ctx context.Context, cfg config.Config, logger *zap.Logger) (*vectorindex.Index, error) {
	metric, err := vectorindex.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, fmt.Errorf("index.metric: %w", err)
	}
	store, err := snapshot.NewStore(cfg.Index.Dir, cfg.Index.Keep, logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	index := vectorindex.New(metric, vectorindex.WithPersister(store))
	if err := index.Restore(ctx); err != nil {
		if !errors.Is(err, domain.ErrSnapshotCorrupt) {
			return nil, err
		}
		logger.Warn("Persisted snapshot is corrupt, index starts empty", zap.Error(err))
	}
	if snap := index.Current(); snap != nil {
		logger.Info("Snapshot restored",
			zap.String("build_id", snap.ID()),
			zap.Int("documents", snap.DocumentCount()),
			zap.Int("chunks", snap.ChunkCount()),
		)
	}
	return index, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	registerMetrics()

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	index, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.index = index

	var cache *dbRedis.Store
	if cfg.Cache.Enabled {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create cache store: %w", err)
		}
		a.closers = append(a.closers, cache.Close)
		if err := cache.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			return nil, fmt.Errorf("cache not ready: %w", err)
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	base, err := a.baseEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	docEmbedder := a.embedderChain(base, cfg.Embedding.DocumentInstruction, cache)
	queryEmbedder := a.embedderChain(base, cfg.Embedding.QueryInstruction, cache)

	generator, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}

	boundary, err := chunker.ParseBoundary(cfg.Chunking.Boundary)
	if err != nil {
		return nil, fmt.Errorf("chunking.boundary: %w", err)
	}
	splitter := chunker.New(
		chunker.WithMaxSize(cfg.Chunking.ChunkSize),
		chunker.WithOverlap(cfg.Chunking.Overlap),
		chunker.WithBoundary(boundary),
	)

	a.indexer = indexing.New(corpus.NewLoader(cfg.Corpus.Extensions), splitter, docEmbedder, index,
		indexing.WithBatchSize(cfg.Embedding.BatchSize),
		indexing.WithConcurrency(cfg.Embedding.Concurrency),
		indexing.WithLogger(logger),
	)

	searchType, err := mode.Parse(cfg.Retrieval.SearchType)
	if err != nil {
		return nil, fmt.Errorf("retrieval.search_type: %w", err)
	}
	retrievalOpts, err := a.retrievalOptions(ctx)
	if err != nil {
		return nil, err
	}
	a.retriever = retrieval.New(index, queryEmbedder, retrieval.Defaults{
		Mode:         searchType,
		K:            cfg.Retrieval.K,
		FetchK:       cfg.Retrieval.FetchK,
		Lambda:       cfg.Retrieval.Lambda,
		MinScore:     cfg.Retrieval.MinScore,
		EmbedTimeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
	}, logger, retrievalOpts...)

	qcfg, err := queryConfig(cfg)
	if err != nil {
		return nil, err
	}
	queryOpts, err := a.queryOptions(ctx)
	if err != nil {
		return nil, err
	}
	a.query = queryuc.New(index, a.indexer, a.retriever, generator, qcfg, logger, queryOpts...)

	// nil interfaces, not typed nil pointers, for absent components
	var pinger healthuc.DBPinger
	if cache != nil {
		pinger = cache
	}
	a.health = healthuc.New(index, pinger, capabilityChecker(docEmbedder), capabilityChecker(generator))

	logger.Info("Services created",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("search_type", string(searchType)),
		zap.Int("expand_queries", cfg.Retrieval.ExpandQueries),
		zap.Bool("compress", cfg.Retrieval.Compress),
	)

	ok = true
	return a, nil
}

// Close releases external connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) baseEmbedder(ctx context.Context) (domain.Embedder, error) {
	ec := a.cfg.Embedding
	switch ec.Provider {
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, ec.APIKey)
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return gemini.NewEmbedder(client, ec.Model, a.logger), nil
	default:
		return openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			HTTPClient: &http.Client{Timeout: time.Duration(ec.TimeoutSec) * time.Second},
			Logger:     a.logger,
		}), nil
	}
}

// embedderChain assembles the decorator chain: provider -> cached -> instrumented -> instruction.
func (a *app) embedderChain(base domain.Embedder, instruction string, cache *dbRedis.Store) domain.Embedder {
	ec := a.cfg.Embedding

	var embedder = base
	if cache != nil {
		embedder = embcache.New(base, cache, ec.Model, time.Duration(a.cfg.Cache.TTLSec)*time.Second,
			metrics.EmbeddingCacheTotal, a.logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, a.logger,
		embeddinguc.WithLimiter(embeddinguc.NewLimiter(ec.RequestsPerSecond, ec.Burst)),
		embeddinguc.WithMaxBatchSize(ec.BatchSize),
	)

	// outermost, so cache keys include the instruction
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func (a *app) generator(ctx context.Context) (domain.Generator, error) {
	gc := a.cfg.Generation
	p, err := prompt.New(gc.SystemPrompt, gc.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("generation prompt: %w", err)
	}
	return a.newGenerator(ctx, p)
}

// newGenerator builds a generator for the configured provider around prompt p.
// Gemini generators share one client.
func (a *app) newGenerator(ctx context.Context, p *prompt.Builder) (domain.Generator, error) {
	gc := a.cfg.Generation

	switch gc.Provider {
	case config.ProviderGemini:
		if a.geminiGen == nil {
			client, err := gemini.NewClient(ctx, gc.APIKey)
			if err != nil {
				return nil, fmt.Errorf("generation: %w", err)
			}
			a.closers = append(a.closers, func() { _ = client.Close() })
			a.geminiGen = client
		}
		return gemini.NewGenerator(a.geminiGen, gc.Model, *gc.Temperature, gc.MaxTokens, p, a.logger), nil
	default:
		return openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			Config: openaiTransport.Config{
				APIKey:     gc.APIKey,
				BaseURL:    gc.BaseURL,
				Model:      gc.Model,
				Provider:   gc.Provider,
				HTTPClient: &http.Client{Timeout: time.Duration(gc.TimeoutSec) * time.Second},
				Logger:     a.logger,
			},
			Temperature: *gc.Temperature,
			MaxTokens:   gc.MaxTokens,
			Prompt:      p,
		}), nil
	}
}

// retrievalOptions enables query expansion when configured.
func (a *app) retrievalOptions(ctx context.Context) ([]retrieval.Option, error) {
	n := a.cfg.Retrieval.ExpandQueries
	if n <= 0 {
		return nil, nil
	}
	expander, err := a.newGenerator(ctx, prompt.Expansion())
	if err != nil {
		return nil, fmt.Errorf("query expansion: %w", err)
	}
	timeout := time.Duration(a.cfg.Generation.TimeoutSec) * time.Second
	return []retrieval.Option{retrieval.WithQueryExpansion(expander, n, timeout)}, nil
}

// queryOptions enables passage compression when configured.
func (a *app) queryOptions(ctx context.Context) ([]queryuc.Option, error) {
	if !a.cfg.Retrieval.Compress {
		return nil, nil
	}
	compressor, err := a.newGenerator(ctx, prompt.Compression())
	if err != nil {
		return nil, fmt.Errorf("compression: %w", err)
	}
	return []queryuc.Option{queryuc.WithCompressor(compressor)}, nil
}

// capabilityChecker returns nil when c has no health probe.
func capabilityChecker(c any) healthuc.CapabilityChecker {
	if hc, ok := c.(domain.HealthChecker); ok {
		return hc
	}
	return nil
}

func queryConfig(cfg config.Config) (queryuc.Config, error) {
	qc := queryuc.DefaultConfig()
	qc.K = cfg.Retrieval.K
	qc.MaxContextChars = cfg.Query.MaxContextChars
	qc.GenerationTimeout = time.Duration(cfg.Generation.TimeoutSec) * time.Second
	if cfg.Query.NoContextReply != "" {
		qc.NoContextReply = cfg.Query.NoContextReply
	}
	if cfg.Query.SmalltalkReply != "" {
		qc.SmalltalkReply = cfg.Query.SmalltalkReply
	}
	if len(cfg.Query.SmalltalkPatterns) > 0 {
		patterns, err := queryuc.CompilePatterns(cfg.Query.SmalltalkPatterns)
		if err != nil {
			return queryuc.Config{}, fmt.Errorf("query.smalltalk_patterns: %w", err)
		}
		qc.SmalltalkPatterns = patterns
	}
	if len(cfg.Query.ContextHeaders) > 0 {
		qc.Headers = make([]queryuc.HeaderField, 0, len(cfg.Query.ContextHeaders))
		for _, h := range cfg.Query.ContextHeaders {
			qc.Headers = append(qc.Headers, queryuc.HeaderField{Key: h.Key, Prefix: h.Prefix})
		}
	}
	if len(cfg.Query.Scope.Filter) > 0 {
		patterns, err := queryuc.CompilePatterns(cfg.Query.Scope.Patterns)
		if err != nil {
			return queryuc.Config{}, fmt.Errorf("query.scope.patterns: %w", err)
		}
		f, err := filter.FromMap(cfg.Query.Scope.Filter)
		if err != nil {
			return queryuc.Config{}, fmt.Errorf("query.scope.filter: %w", err)
		}
		qc.Scope = queryuc.Scope{Patterns: patterns, Filter: f}
	}
	return qc, nil
}
