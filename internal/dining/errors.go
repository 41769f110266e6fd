package dining

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindInternal   Kind = "INTERNAL_ERROR"
)

// Row-level sentinels returned by Store implementations.
var (
	ErrNoRows    = errors.New("no rows in result set")
	ErrDuplicate = errors.New("duplicate key")
)

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

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the kind onto the HTTP contract. Conflicts are reported as 400.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, code string, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func ValidationError(code string, message string) *Error {
	return newError(KindValidation, code, message, nil)
}

func NotFoundError(code string, message string) *Error {
	return newError(KindNotFound, code, message, nil)
}

func ConflictError(code string, message string) *Error {
	return newError(KindConflict, code, message, nil)
}

func InternalError(message string, err error) *Error {
	return newError(KindInternal, string(KindInternal), message, err)
}

// IsKind reports whether err carries a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// notFoundOr converts ErrNoRows into a NotFound error and anything else into Internal.
func notFoundOr(err error, code string, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoRows) {
		return NotFoundError(code, what+" not found")
	}
	return internal(fmt.Sprintf("failed to load %s", what), err)
}

func internal(message string, err error) error {
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return InternalError(message, err)
}
