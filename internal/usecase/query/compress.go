package query

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/prompt"
)

// compressConcurrency bounds parallel compression calls per question.
const compressConcurrency = 4

// compress replaces each hit's text with the parts the compressor extracts for
// question, dropping hits it answers prompt.NoOutput for. A hit whose call fails
// is kept whole. Order is preserved.
func (s *Service) compress(ctx context.Context, question string, hits []result.Result) []result.Result {
	log := logger.FromContextOr(ctx, s.logger)

	out := make([]*result.Result, len(hits))
	var g errgroup.Group
	g.SetLimit(compressConcurrency)
	for i := range hits {
		g.Go(func() error {
			res, err := s.generate(ctx, s.compressor, question, hits[i].Text())
			if err != nil {
				log.Warn("Compression failed, keeping passage whole",
					zap.String("chunk_id", hits[i].ID()), zap.Error(err))
				out[i] = &hits[i]
				return nil
			}
			text := strings.TrimSpace(res.Text)
			if text == "" || strings.Contains(text, prompt.NoOutput) {
				return nil
			}
			trimmed := hits[i].WithText(text)
			out[i] = &trimmed
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]result.Result, 0, len(hits))
	for _, r := range out {
		if r != nil {
			kept = append(kept, *r)
		}
	}
	log.Debug("Compressed passages", zap.Int("retrieved", len(hits)), zap.Int("kept", len(kept)))
	return kept
}
