// Package apperr defines the error kinds shared by the engine and both transports.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindNotFound           Kind = "NOT_FOUND"
	KindForbidden          Kind = "FORBIDDEN"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindNoActiveTournament Kind = "NO_ACTIVE_TOURNAMENT"
	KindUnavailable        Kind = "UPSTREAM_UNAVAILABLE"
	KindFatal              Kind = "INTERNAL"
)

// Issue is a single field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Issues  []Issue
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindNoActiveTournament:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Validation(issues ...Issue) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Issues: issues}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Unauthorized(msg string, err error) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, Err: err}
}

var ErrNoActiveTournament = &Error{Kind: KindNoActiveTournament, Message: "No active tournament found"}

// Fatal wraps a store failure; the operation that hit it was aborted.
func Fatal(op string, err error) *Error {
	return &Error{Kind: KindFatal, Message: op + " failed", Err: err}
}

// KindOf returns the kind of err, KindFatal for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
