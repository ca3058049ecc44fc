package database

import (
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"check violation", &pq.Error{Code: "23514"}, ErrorClassPermanent},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"wrapped deadlock", errors.Wrap(&pq.Error{Code: "40P01"}, "lock products"), ErrorClassDeadlock},
		{"domain error", ErrInsufficientStock, ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.False(t, IsRetryable(ErrProductNotFound))
}

func TestIsUniqueViolation(t *testing.T) {
	err := errors.Wrap(&pq.Error{Code: "23505", Constraint: "users_phone_key"}, "create user")

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "users_phone_key"))
	assert.False(t, IsUniqueViolation(err, "users_email_key"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
}

func TestSentinelKinds(t *testing.T) {
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(ErrEmptyOrder))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(errors.Wrapf(ErrProductNotFound, "product %d", 7)))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(ErrInsufficientStock))
}
