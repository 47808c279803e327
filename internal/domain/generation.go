package domain

import "context"

// Generator is the answer generation capability: it conditions a language model on the
// retrieved context and returns the answer text.
type Generator interface {
	Generate(ctx context.Context, question, context string) (GenerationResult, error)
}

// GenerationResult carries the generated text and token usage.
type GenerationResult struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}
