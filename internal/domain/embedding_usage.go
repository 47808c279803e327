package domain

import (
	"context"
	"sync/atomic"
)

type embeddingUsageKey struct{}

// EmbeddingUsage accumulates the embedding tokens spent serving one request.
// The transport installs it in the context; retrieval adds to it after each
// question embedding. Safe for concurrent use; a nil collector ignores writes.
type EmbeddingUsage struct {
	tokens atomic.Int64
	used   atomic.Bool
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext returns the request's collector, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records an embedding call. Cache hits add zero tokens but still count as used.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.tokens.Add(int64(n))
	u.used.Store(true)
}

// Tokens returns the tokens recorded so far.
func (u *EmbeddingUsage) Tokens() int {
	if u == nil {
		return 0
	}
	return int(u.tokens.Load())
}

// Used reports whether any embedding call was recorded.
func (u *EmbeddingUsage) Used() bool {
	return u != nil && u.used.Load()
}
