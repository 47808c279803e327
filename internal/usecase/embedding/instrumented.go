// Package embedding decorates embedding providers with rate limiting,
// sub-batching and logging.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// DefaultMaxAPIBatchSize is the largest number of texts sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// NewLimiter creates a provider rate limiter. rps <= 0 disables limiting (nil).
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// InstrumentedEmbedder wraps Embedder with rate limiting and logging.
// Transport metrics (requests, duration, tokens) are recorded in the provider adapters.
type InstrumentedEmbedder struct {
	inner        domain.Embedder
	provider     string
	model        string
	limiter      *rate.Limiter
	maxBatchSize int
	logger       *zap.Logger
}

// Option configures the instrumented embedder.
type Option func(*InstrumentedEmbedder)

// WithLimiter throttles provider requests. A nil limiter disables throttling.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *InstrumentedEmbedder) { p.limiter = l }
}

// WithMaxBatchSize caps the number of texts per provider request.
func WithMaxBatchSize(n int) Option {
	return func(p *InstrumentedEmbedder) {
		if n > 0 {
			p.maxBatchSize = n
		}
	}
}

// NewInstrumentedEmbedder wraps an embedder with rate limiting and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, logger *zap.Logger, opts ...Option,
) *InstrumentedEmbedder {
	p := &InstrumentedEmbedder{
		inner:        inner,
		provider:     provider,
		model:        model,
		maxBatchSize: DefaultMaxAPIBatchSize,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Embed waits for the limiter and delegates to the inner embedder.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if err := p.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed splits texts into provider-sized sub-batches and embeds them in order.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	var result domain.BatchEmbeddingResult
	for offset := 0; offset < len(texts); offset += p.maxBatchSize {
		end := min(offset+p.maxBatchSize, len(texts))
		sub := texts[offset:end]

		if err := p.wait(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		subResult, err := domain.EmbedBatch(ctx, p.inner, sub)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("batch_offset", offset),
				zap.Int("batch_size", len(sub)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		if len(subResult.Embeddings) != len(sub) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf(
				"%w: provider returned %d embeddings for %d texts",
				domain.ErrEmbeddingProviderError, len(subResult.Embeddings), len(sub))
		}

		result.Embeddings = append(result.Embeddings, subResult.Embeddings...)
		result.PromptTokens += subResult.PromptTokens
		result.TotalTokens += subResult.TotalTokens
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (p *InstrumentedEmbedder) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	metrics.EmbeddingRateLimitWait.WithLabelValues(p.provider).Observe(time.Since(start).Seconds())
	return nil
}
