package engine

import (
	"errors"
	"fmt"

	"github.com/jason-chang/openapi-mcp/pkg/document"
	"github.com/jason-chang/openapi-mcp/pkg/examples"
	"github.com/jason-chang/openapi-mcp/pkg/index"
	"github.com/jason-chang/openapi-mcp/pkg/resources"
	"github.com/jason-chang/openapi-mcp/pkg/search"
)

// Kind categorizes engine errors for structured handling at the transport.
type Kind string

const (
	KindUnresolvableReference Kind = "unresolvable_reference"
	KindIndexBuild            Kind = "index_build"
	KindNotFound              Kind = "not_found"
	KindInvalidQuery          Kind = "invalid_query"
	KindUnknownModel          Kind = "unknown_model"
	KindUnknownEndpoint       Kind = "unknown_endpoint"
	KindTimeout               Kind = "timeout"
	KindBackpressure          Kind = "backpressure"
	KindInternal              Kind = "internal"
)

// Error is the structured error surfaced by every engine operation.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies any error into an engine Kind, unwrapping the typed
// errors of the component packages.
func KindOf(err error) Kind {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	var (
		unresolvable *document.UnresolvableReferenceError
		buildErr     *index.BuildError
		notFound     *resources.NotFoundError
		invalidQuery *search.InvalidQueryError
		unknownModel *examples.UnknownModelError
		unknownEp    *examples.UnknownEndpointError
		unknownFmt   *examples.UnknownFormatError
		badFormat    *resources.UnknownFormatError
	)
	switch {
	case errors.As(err, &unresolvable):
		return KindUnresolvableReference
	case errors.As(err, &buildErr):
		return KindIndexBuild
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &invalidQuery):
		return KindInvalidQuery
	case errors.As(err, &unknownModel):
		return KindUnknownModel
	case errors.As(err, &unknownEp):
		return KindUnknownEndpoint
	case errors.As(err, &unknownFmt), errors.As(err, &badFormat):
		return KindInvalidQuery
	default:
		return KindInternal
	}
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// NotFound reports whether err is any of the lookup-miss kinds.
func NotFound(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindUnknownModel, KindUnknownEndpoint:
		return true
	default:
		return false
	}
}

// wrap lifts a component error into an engine Error, preserving its kind.
func wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	return &Error{Kind: KindOf(err), Message: message, Err: err}
}

func timeoutError(op string) error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("%s exceeded the request timeout", op)}
}

func backpressureError(op string) error {
	return &Error{Kind: KindBackpressure, Message: fmt.Sprintf("%s rejected: request queue is full", op)}
}
