package docqa

import "time"

// Source is a chunk that backed an answer.
type Source struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Answer is a successful reply to a question.
type Answer struct {
	Question string
	Text     string
	Sources  []Source
}

// Status describes the server's index.
type Status struct {
	Initialized        bool       `json:"rag_initialized"`
	State              string     `json:"state"`
	DocumentCount      int        `json:"document_count"`
	ChunkCount         int        `json:"chunk_count"`
	EmbeddingDimension int        `json:"embedding_dimension"`
	BuildID            string     `json:"build_id,omitempty"`
	BuiltAt            *time.Time `json:"built_at,omitempty"`
}

// RebuildResult summarizes a rebuild. Counters are zero for a background rebuild.
type RebuildResult struct {
	Message       string
	BuildID       string
	DocumentCount int
	ChunkCount    int
	Skipped       int
}

// Hit is a retrieved chunk.
type Hit struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Score      float64           `json:"score"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HealthStatus represents the aggregated server health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"/"not_ready"
}

// Healthy reports whether every component passed.
func (h HealthStatus) Healthy() bool { return h.Status == "ok" }

// wire formats

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Status    string   `json:"status"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Error     string   `json:"error"`
	ErrorKind string   `json:"error_kind"`
}

type rebuildResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	BuildID       string `json:"build_id"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	Skipped       int    `json:"skipped"`
	ErrorKind     string `json:"error_kind"`
}

type searchResponse struct {
	Status    string `json:"status"`
	Hits      []Hit  `json:"hits"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
