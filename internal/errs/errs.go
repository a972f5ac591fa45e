// Package errs defines the error-kind taxonomy shared by the Metadata Index,
// Object Store, and Image Delivery Service, and maps it to HTTP responses.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the stable error categories exposed in API envelopes and logs.
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindBadRequest        Kind = "BadRequest"
	KindConflict          Kind = "Conflict"
	KindRateLimited       Kind = "RateLimited"
	KindCorruptArtifact   Kind = "CorruptArtifact"
	KindDicomReject       Kind = "DicomReject"
	KindProcessingFailure Kind = "ProcessingFailure"
	KindTimeout           Kind = "Timeout"
	KindUnavailable       Kind = "Unavailable"
)

// Error wraps an underlying cause with a stable Kind and optional structured details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a new Error of the given kind, preserving cause for errors.Is/As chains.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured details and returns the receiver for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind of err, defaulting to ProcessingFailure for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessingFailure
}

// HTTPStatus maps a Kind to the HTTP status code that best represents it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindCorruptArtifact:
		return http.StatusInternalServerError
	case KindProcessingFailure:
		return http.StatusInternalServerError
	case KindTimeout:
		return http.StatusServiceUnavailable
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindDicomReject:
		return http.StatusInternalServerError // not actually surfaced over HTTP
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the standard JSON error body shape: {"error":{"kind","message","details"}}.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

type EnvelopeBody struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToEnvelope converts any error into the wire envelope, defaulting unknown errors
// to ProcessingFailure without leaking internal messages verbatim.
func ToEnvelope(err error) (int, Envelope) {
	var e *Error
	if errors.As(err, &e) {
		return HTTPStatus(e.Kind), Envelope{Error: EnvelopeBody{
			Kind:    e.Kind,
			Message: e.Message,
			Details: e.Details,
		}}
	}
	return http.StatusInternalServerError, Envelope{Error: EnvelopeBody{
		Kind:    KindProcessingFailure,
		Message: "internal error",
	}}
}
