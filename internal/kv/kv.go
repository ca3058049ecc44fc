// Package kv is a small expiring key/value store used for OTP challenges and idempotency records.
package kv

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// New connects to Redis when url is set and falls back to process memory otherwise.
func New(ctx context.Context, url string) (Store, error) {
	if url == "" {
		return NewMemory(), nil
	}
	return NewRedis(ctx, url)
}
