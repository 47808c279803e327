package request

import (
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain/search/filter"
	"github.com/kailas-cloud/docqa/internal/domain/search/mode"
)

// Retrieval parameter limits.
const (
	// MaxQueryLength is the maximum allowed question length in bytes.
	MaxQueryLength = 8192
	DefaultK       = 4
	MaxK           = 100
	DefaultFetchK  = 20
	MaxFetchK      = 500
	DefaultLambda  = 0.5
)

// Request is a validated retrieval query.
type Request struct {
	query    string
	mode     mode.Mode
	filters  filter.Expression
	k        int
	fetchK   int
	lambda   float64
	minScore float64
}

// New validates and normalizes retrieval parameters.
// Defaults: mode=similarity, k=4, fetchK=max(20, k). fetchK is never below k.
func New(
	query string,
	m mode.Mode,
	filters filter.Expression,
	k, fetchK int,
	lambda, minScore float64,
) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d bytes)", MaxQueryLength)
	}
	if m == "" {
		m = mode.Similarity
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("invalid search type: %q", m)
	}
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}
	if fetchK <= 0 {
		fetchK = DefaultFetchK
	}
	if fetchK < k {
		fetchK = k
	}
	if fetchK > MaxFetchK {
		fetchK = MaxFetchK
	}
	if math.IsNaN(lambda) || lambda < 0 || lambda > 1 {
		return Request{}, fmt.Errorf("lambda must be between 0 and 1")
	}
	if math.IsNaN(minScore) {
		return Request{}, fmt.Errorf("min_score must be a number")
	}

	return Request{
		query:    query,
		mode:     m,
		filters:  filters,
		k:        k,
		fetchK:   fetchK,
		lambda:   lambda,
		minScore: minScore,
	}, nil
}

// Query returns the trimmed question text.
func (r *Request) Query() string { return r.query }

// Mode returns the retrieval strategy.
func (r *Request) Mode() mode.Mode { return r.mode }

// Filters returns the metadata filter.
func (r *Request) Filters() filter.Expression { return r.filters }

// K returns the number of chunks to return.
func (r *Request) K() int { return r.k }

// FetchK returns the number of candidates considered by MMR.
func (r *Request) FetchK() int { return r.fetchK }

// Lambda returns the MMR relevance/diversity trade-off (1 = relevance only).
func (r *Request) Lambda() float64 { return r.lambda }

// MinScore returns the minimum score threshold (0 disables it).
func (r *Request) MinScore() float64 { return r.minScore }

// WithoutFilters returns a copy with the metadata filter removed.
func (r *Request) WithoutFilters() Request {
	c := *r
	c.filters = filter.Expression{}
	return c
}
