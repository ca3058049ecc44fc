// Package apperr defines the error kinds surfaced to API callers.
//
// Every failure the service reports carries one stable Kind and a human readable message.
// Errors are usually created once as package level values and wrapped at the call site with
// github.com/pkg/errors, so errors.Is keeps matching the original value and KindOf still finds
// the kind through any number of wrappers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
	KindUnauthenticated
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization_error"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindDependency:
		return "dependency_error"
	default:
		return "internal_error"
	}
}

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindAuthorization, fmt.Sprintf(format, args...))
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return New(KindUnauthenticated, fmt.Sprintf(format, args...))
}

func Dependency(format string, args ...interface{}) *Error {
	return New(KindDependency, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
