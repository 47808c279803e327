package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/search/result"
)

// listMarker matches bullets and numbering models add despite being asked not to.
var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

// expandedVectors embeds generated rephrasings of question. Any failure only
// narrows the search back toward the question itself.
func (s *Service) expandedVectors(ctx context.Context, question string, dim int) [][]float32 {
	if s.expander == nil {
		return nil
	}

	res, err := bounded(ctx, s.expandTimeout, domain.ErrGenerationProviderError,
		func(ctx context.Context) (domain.GenerationResult, error) {
			return s.expander.Generate(ctx, question, "")
		})
	if err != nil {
		s.logger.Warn("Query expansion failed, searching the question only", zap.Error(err))
		return nil
	}

	variants := parseRephrasings(res.Text, question, s.expandN)
	if len(variants) == 0 {
		return nil
	}

	usage := domain.UsageFromContext(ctx)
	vectors := make([][]float32, len(variants))
	var g errgroup.Group
	for i, v := range variants {
		g.Go(func() error {
			emb, err := s.embedQuestion(ctx, v)
			if err != nil {
				s.logger.Debug("Skipping rephrasing", zap.String("query", v), zap.Error(err))
				return nil
			}
			usage.AddTokens(emb.TotalTokens)
			if len(emb.Embedding) == dim {
				vectors[i] = emb.Embedding
			}
			return nil
		})
	}
	_ = g.Wait()

	out := vectors[:0]
	for _, v := range vectors {
		if v != nil {
			out = append(out, v)
		}
	}
	s.logger.Debug("Expanded question", zap.Int("rephrasings", len(out)))
	return out
}

// parseRephrasings takes one query per line, drops list markers, blanks and
// repeats of the question, and keeps at most n.
func parseRephrasings(text, question string, n int) []string {
	seen := map[string]struct{}{strings.ToLower(strings.TrimSpace(question)): {}}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if len(out) == n {
			break
		}
		q := strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// mergeHits unions hit lists by chunk id, keeping each chunk's best score, and
// returns the top k by descending score. Ties keep first appearance.
func mergeHits(lists [][]result.Result, k int) []result.Result {
	pos := make(map[string]int)
	var merged []result.Result
	for _, hits := range lists {
		for _, h := range hits {
			if i, ok := pos[h.ID()]; ok {
				if h.Score() > merged[i].Score() {
					merged[i] = h
				}
				continue
			}
			pos[h.ID()] = len(merged)
			merged = append(merged, h)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score() > merged[j].Score()
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	if merged == nil {
		merged = []result.Result{}
	}
	return merged
}
