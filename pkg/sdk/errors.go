package docqa

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Sentinel errors matched by *APIError via errors.Is.
var (
	ErrValidation   = domain.ErrValidation
	ErrNotReady     = domain.ErrNotReady
	ErrIndexBuild   = domain.ErrIndexBuild
	ErrCapability   = errors.New("capability unavailable")
	ErrInternal     = errors.New("internal server error")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error kinds reported in the error_kind field.
const (
	KindValidation = "validation"
	KindNotReady   = "not_ready"
	KindCapability = "capability"
	KindIndexBuild = "index_build"
	KindInternal   = "internal"
)

// APIError is a failure reported by the server.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("docqa: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("docqa: %s: %s", e.Kind, e.Message)
}

// Unwrap maps the error kind to its sentinel.
func (e *APIError) Unwrap() error {
	switch e.Kind {
	case KindValidation:
		return ErrValidation
	case KindNotReady:
		return ErrNotReady
	case KindCapability:
		return ErrCapability
	case KindIndexBuild:
		return ErrIndexBuild
	case "unauthorized":
		return ErrUnauthorized
	default:
		return ErrInternal
	}
}
