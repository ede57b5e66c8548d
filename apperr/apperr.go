// Package apperr defines the typed error kinds shared across the pipeline
// and the single table that maps them onto HTTP status codes.
package apperr

import "errors"

// Kind classifies an error the way the controller and HTTP layer need to
// react to it, independent of the underlying cause.
type Kind string

// The error kinds named in the pipeline's error-handling design. Provider
// retries are resolved inside the adapter, so ProviderError only ever
// reaches the controller as a single final error.
const (
	KindValidation          Kind = "ValidationError"
	KindNotFound            Kind = "NotFound"
	KindConflict            Kind = "Conflict"
	KindUnauthorized        Kind = "Unauthorized"
	KindProviderError       Kind = "ProviderError"
	KindJSONGuard           Kind = "JSONGuardError"
	KindEmptyCriticalResult Kind = "EmptyCriticalResult"
	KindTimeout             Kind = "Timeout"
	KindInternal            Kind = "Internal"
)

// Error is a typed, wrapped error carrying a Kind for HTTP-status mapping
// and a short machine-readable Code (UPPER_SNAKE, per the HTTP error
// envelope) alongside a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(kind Kind, code string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: err.Error(), Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise — used by the HTTP layer's single classification table.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// CodeOf returns the machine-readable code of err if it is an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
