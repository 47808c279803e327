package answer

import (
	"errors"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Status is the outcome of an ask call.
type Status string

// Answer statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind classifies a failed ask call.
type ErrorKind string

// Error kinds.
const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation"
	KindNotReady   ErrorKind = "not_ready"
	KindCapability ErrorKind = "capability"
	KindIndexBuild ErrorKind = "index_build"
	KindInternal   ErrorKind = "internal"
)

// Source is a retrieved chunk that backed a successful answer.
type Source struct {
	ChunkID    string
	DocumentID string
	Score      float64
	Metadata   map[string]string
}

// Answer is the structured result of an ask call. Exactly one of Text (success)
// or Detail (error) is non-empty.
type Answer struct {
	status  Status
	kind    ErrorKind
	text    string
	detail  string
	sources []Source
}

// Success creates a successful answer.
func Success(text string, sources []Source) Answer {
	return Answer{status: StatusSuccess, text: text, sources: sources}
}

// Failure creates an error answer. An empty detail is replaced by the kind name.
func Failure(kind ErrorKind, detail string) Answer {
	if detail == "" {
		detail = string(kind)
	}
	if kind == KindNone {
		kind = KindInternal
	}
	return Answer{status: StatusError, kind: kind, detail: detail}
}

// FromError converts err into an error answer with the matching kind.
func FromError(err error) Answer {
	return Failure(KindOf(err), err.Error())
}

// KindOf resolves the error kind for err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, domain.ErrValidation):
		return KindValidation
	case errors.Is(err, domain.ErrNotReady):
		return KindNotReady
	case domain.IsCapabilityError(err):
		return KindCapability
	case errors.Is(err, domain.ErrIndexBuild), errors.Is(err, domain.ErrRebuildInProgress):
		return KindIndexBuild
	default:
		return KindInternal
	}
}

// Status returns the answer status.
func (a *Answer) Status() Status { return a.status }

// OK reports whether the answer succeeded.
func (a *Answer) OK() bool { return a.status == StatusSuccess }

// Kind returns the error kind (empty on success).
func (a *Answer) Kind() ErrorKind { return a.kind }

// Text returns the generated answer text.
func (a *Answer) Text() string { return a.text }

// Detail returns the error detail.
func (a *Answer) Detail() string { return a.detail }

// Sources returns the chunks that backed the answer.
func (a *Answer) Sources() []Source { return a.sources }
