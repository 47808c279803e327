package chi

import "time"

// Response statuses on /api routes.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// ErrorResponse is returned for transport-level failures (auth, routing, panics).
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question *string `json:"question"`
}

// SourceResponse describes a chunk that backed an answer.
type SourceResponse struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Score      float64           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AskResponse is the body of every POST /api/ask reply.
type AskResponse struct {
	Status    string           `json:"status"`
	Question  string           `json:"question,omitempty"`
	Answer    string           `json:"answer,omitempty"`
	Sources   []SourceResponse `json:"sources,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	RAGInitialized     bool       `json:"rag_initialized"`
	State              string     `json:"state"`
	DocumentCount      int        `json:"document_count"`
	ChunkCount         int        `json:"chunk_count"`
	EmbeddingDimension int        `json:"embedding_dimension"`
	BuildID            string     `json:"build_id,omitempty"`
	BuiltAt            *time.Time `json:"built_at,omitempty"`
}

// RebuildResponse is the body of POST /api/rebuild.
type RebuildResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	BuildID       string `json:"build_id,omitempty"`
	DocumentCount *int   `json:"document_count,omitempty"`
	ChunkCount    *int   `json:"chunk_count,omitempty"`
	Skipped       *int   `json:"skipped,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
}

// SearchHit is one retrieved chunk on GET /api/search.
type SearchHit struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Score      float64           `json:"score"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Status    string      `json:"status"`
	Hits      []SearchHit `json:"hits"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
