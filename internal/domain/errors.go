package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals bad input that never reaches a backend.
	ErrValidation = errors.New("validation failed")
	// ErrNotReady signals that no index snapshot has been committed yet.
	ErrNotReady = errors.New("index not ready")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals an answer generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrCapabilityTimeout signals that a capability call exceeded its deadline.
	ErrCapabilityTimeout = errors.New("capability call timed out")
	// ErrIndexBuild signals a failed rebuild; the previous snapshot stays active.
	ErrIndexBuild = errors.New("index build failed")
	// ErrRebuildInProgress signals that another rebuild is already running.
	ErrRebuildInProgress = errors.New("rebuild already in progress")
	// ErrCorpusUnreadable signals that the corpus path cannot be read.
	ErrCorpusUnreadable = errors.New("corpus unreadable")
	// ErrNoDocuments signals that the corpus produced zero documents.
	ErrNoDocuments = errors.New("no documents found in corpus")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrSnapshotCorrupt signals an unreadable persisted snapshot.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// IsCapabilityError reports whether err came from an external capability (embedding or generation).
func IsCapabilityError(err error) bool {
	return errors.Is(err, ErrEmbeddingProviderError) ||
		errors.Is(err, ErrGenerationProviderError) ||
		errors.Is(err, ErrCapabilityTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// RetrievalError wraps a failure of the retrieval step (embedding the question or querying the index).
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval: " + e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

// IndexBuildError wraps the failed rebuild stage and its cause.
type IndexBuildError struct {
	Stage string
	Err   error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrIndexBuild.Error(), e.Stage, e.Err.Error())
}

// Unwrap exposes both ErrIndexBuild and the underlying cause to errors.Is.
func (e *IndexBuildError) Unwrap() []error { return []error{ErrIndexBuild, e.Err} }

// NewIndexBuildError creates an IndexBuildError for the given stage.
func NewIndexBuildError(stage string, err error) error {
	return &IndexBuildError{Stage: stage, Err: err}
}
