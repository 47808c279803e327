package retrieval

import (
	"math"
	"sort"

	"github.com/kailas-cloud/docqa/internal/domain/search/result"
	"github.com/kailas-cloud/docqa/internal/vectorindex"
)

// selectMMR picks k results from candidates by maximal marginal relevance:
//
//	mmr(d) = lambda*sim(q, d) - (1-lambda)*max_{s in selected} sim(d, s)
//
// sim is cosine similarity regardless of the index metric. Candidates keep
// their original index score; ties go to the earlier (higher-ranked) candidate.
// MMR only chooses the set: the result is returned by descending index score.
func selectMMR(query []float32, candidates []result.Result, k int, lambda float64) []result.Result {
	if k <= 0 || len(candidates) == 0 {
		return []result.Result{}
	}
	if k >= len(candidates) && lambda >= 1 {
		return candidates
	}

	qNorm := vectorindex.Norm(query)
	norms := make([]float64, len(candidates))
	relevance := make([]float64, len(candidates))
	for i := range candidates {
		v := candidates[i].Vector()
		norms[i] = vectorindex.Norm(v)
		relevance[i] = vectorindex.MetricCosine.Score(query, v, qNorm, norms[i])
	}

	// maxSim[i] tracks the highest similarity of candidate i to any selected result.
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}
	picked := make([]bool, len(candidates))
	selected := make([]result.Result, 0, min(k, len(candidates)))

	for len(selected) < k && len(selected) < len(candidates) {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if picked[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}

		picked[best] = true
		selected = append(selected, candidates[best])

		bv := candidates[best].Vector()
		for i := range candidates {
			if picked[i] {
				continue
			}
			sim := vectorindex.MetricCosine.Score(candidates[i].Vector(), bv, norms[i], norms[best])
			if sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Score() > selected[j].Score()
	})
	return selected
}
