// Package apperror defines the error kinds surfaced by domain services and
// their translation to HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a domain error.
type Kind string

const (
	KindInvalidReference  Kind = "INVALID_REFERENCE"
	KindInvalidState      Kind = "INVALID_STATE"
	KindForbidden         Kind = "FORBIDDEN"
	KindDependencyFailure Kind = "DEPENDENCY_FAILURE"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
)

// Error is a classified error carrying enough detail for the caller to act.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	ID      string `json:"id,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInvalidReference:
		return http.StatusUnprocessableEntity
	case KindInvalidState:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindDependencyFailure:
		return http.StatusFailedDependency
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// InvalidReference reports a foreign id that does not resolve.
func InvalidReference(entity string, id fmt.Stringer) *Error {
	return &Error{
		Kind:    KindInvalidReference,
		Message: fmt.Sprintf("invalid %s id: %s", entity, id),
		Field:   entity + "Id",
		ID:      id.String(),
	}
}

// InvalidRef is InvalidReference for string ids such as reference numbers.
func InvalidRef(entity, id string) *Error {
	return &Error{
		Kind:    KindInvalidReference,
		Message: fmt.Sprintf("invalid %s: %s", entity, id),
		Field:   entity,
		ID:      id,
	}
}

// InvalidState reports a field or status combination that violates an invariant.
func InvalidState(field, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// DependencyFailure reports a batch write that produced fewer rows than requested.
func DependencyFailure(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDependencyFailure, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		ID:      id,
	}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// FromStore maps storage errors onto error kinds. Errors it does not
// recognise are returned unchanged.
func FromStore(err error, entity string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: KindNotFound, Message: entity + " not found", cause: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &Error{Kind: KindConflict, Message: entity + " already exists", Field: pgErr.ConstraintName, cause: err}
		case "23503":
			return &Error{Kind: KindInvalidReference, Message: "referenced record does not exist", Field: pgErr.ConstraintName, cause: err}
		}
	}
	return err
}
