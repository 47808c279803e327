package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "gemini-embedding-001"

// Embedder vectorizes text with a Gemini embedding model.
type Embedder struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewEmbedder wraps an existing client. An empty model selects DefaultEmbeddingModel.
func NewEmbedder(client *genai.Client, model string, logger *zap.Logger) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{client: client, model: model, logger: logger}
}

// Embed implements domain.Embedder. Gemini does not report token usage for embeddings.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, err := e.client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		e.fail("api_error")
		return domain.EmbeddingResult{}, wrapError("embedding", err, domain.ErrEmbeddingProviderError)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		e.fail("empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding received: %w", domain.ErrEmbeddingProviderError)
	}

	e.succeed(time.Since(start))
	return domain.EmbeddingResult{Embedding: res.Embedding.Values}, nil
}

// BatchEmbed embeds texts with one batchEmbedContents call, keeping input order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	start := time.Now()
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		e.fail("api_error")
		return domain.BatchEmbeddingResult{}, wrapError("embedding", err, domain.ErrEmbeddingProviderError)
	}
	if len(res.Embeddings) != len(texts) {
		e.fail("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(res.Embeddings), domain.ErrEmbeddingProviderError)
	}

	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			e.fail("empty_response")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty embedding at %d: %w", i, domain.ErrEmbeddingProviderError)
		}
		out[i] = emb.Values
	}

	e.succeed(time.Since(start))
	e.logger.Debug("Embedded texts", zap.String("model", e.model), zap.Int("count", len(texts)))
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// HealthCheck embeds a probe string.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.Embed(ctx, "ping"); err != nil {
		return fmt.Errorf("gemini embedding probe: %w", err)
	}
	return nil
}

func (e *Embedder) fail(reason string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, reason).Inc()
}

func (e *Embedder) succeed(d time.Duration) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.model).Observe(d.Seconds())
}
