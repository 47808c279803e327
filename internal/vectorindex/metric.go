package vectorindex

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the similarity function used to score chunks against a query.
type Metric string

// Supported metrics. Scores are oriented so that higher is always closer.
const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
	MetricL2     Metric = "l2"
)

// ParseMetric converts a config value into a Metric. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricDot, MetricL2:
		return m, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Score computes the similarity between a and b. normA and normB are the
// precomputed Euclidean norms (used by cosine only).
func (m Metric) Score(a, b []float32, normA, normB float64) float64 {
	switch m {
	case MetricDot:
		return dot(a, b)
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return -math.Sqrt(sum)
	default:
		if normA == 0 || normB == 0 {
			return 0
		}
		return dot(a, b) / (normA * normB)
	}
}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
