package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/safar/smartgrocer/internal/apperr"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint failure, optionally on a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrUserNotFound         = apperr.NotFound("user not found")
	ErrProductNotFound      = apperr.NotFound("product not found")
	ErrOrderNotFound        = apperr.NotFound("order not found")
	ErrInsufficientStock    = apperr.Conflict("insufficient stock")
	ErrOptimisticLockFailed = apperr.Conflict("record was modified concurrently")
	ErrLockTimeout          = apperr.Conflict("record is locked by another request")
	ErrPhoneTaken           = apperr.Conflict("phone number already registered")

	ErrEmptyOrder      = apperr.Validation("order has no items")
	ErrInvalidQuantity = apperr.Validation("quantity must be positive")
	ErrInvalidAmount   = apperr.Validation("amount must be positive")
	ErrInvalidPrice    = apperr.Validation("price must be positive")
	ErrInvalidStock    = apperr.Validation("stock must not be negative")
)
