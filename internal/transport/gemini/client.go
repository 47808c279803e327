// Package gemini adapts the Google Gemini API to the embedding and generation capabilities.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kailas-cloud/docqa/internal/domain"
)

const provider = "gemini"

// NewClient creates a Gemini client. Extra options (endpoint, HTTP client) are
// appended after the API key.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// wrapError attaches the capability sentinel, plus domain.ErrRateLimited on HTTP 429.
func wrapError(kind string, err error, sentinel error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%s API error %d: %s: %w: %w", kind, gErr.Code, gErr.Message, sentinel, domain.ErrRateLimited)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, gErr.Code, gErr.Message, sentinel)
	}
	return fmt.Errorf("%s request failed: %w: %w", kind, sentinel, err)
}
