package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
	"github.com/kailas-cloud/docqa/internal/prompt"
)

// DefaultGenerationModel is used when no model is configured.
const DefaultGenerationModel = "gemini-2.0-flash"

// Generator answers questions with a Gemini generative model.
type Generator struct {
	model  *genai.GenerativeModel
	name   string
	prompt *prompt.Builder
	logger *zap.Logger
}

// NewGenerator configures a generative model on client.
func NewGenerator(
	client *genai.Client, model string, temperature float32, maxTokens int,
	p *prompt.Builder, logger *zap.Logger,
) *Generator {
	if model == "" {
		model = DefaultGenerationModel
	}
	if p == nil {
		p = prompt.MustDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gm := client.GenerativeModel(model)
	gm.SetTemperature(temperature)
	if maxTokens > 0 {
		gm.SetMaxOutputTokens(int32(maxTokens))
	}
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System())}}

	return &Generator{model: gm, name: model, prompt: p, logger: logger}
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, question, contextText string) (domain.GenerationResult, error) {
	user, err := g.prompt.User(question, contextText)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: %w", domain.ErrGenerationProviderError, err)
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.Text(user))
	duration := time.Since(start)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(provider, g.name, "error").Inc()
		return domain.GenerationResult{}, wrapError("generation", err, domain.ErrGenerationProviderError)
	}

	text := responseText(resp)
	if text == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(provider, g.name, "error").Inc()
		return domain.GenerationResult{}, fmt.Errorf("empty generation response: %w", domain.ErrGenerationProviderError)
	}

	res := domain.GenerationResult{Text: text, Model: g.name}
	if resp.UsageMetadata != nil {
		res.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		res.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(provider, g.name, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(provider, g.name).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(provider, g.name, "prompt").Add(float64(res.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(provider, g.name, "completion").Add(float64(res.CompletionTokens))

	g.logger.Debug("Generated answer",
		zap.String("model", g.name),
		zap.Int("completion_tokens", res.CompletionTokens),
		zap.Duration("duration", duration),
	)
	return res, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String())
}
