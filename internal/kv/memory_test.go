package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGetDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	value, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	require.NoError(t, m.Del(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Set(ctx, "otp", "hash", 5*time.Minute))

	clock = clock.Add(4 * time.Minute)
	_, err := m.Get(ctx, "otp")
	assert.NoError(t, err)

	clock = clock.Add(time.Minute)
	_, err = m.Get(ctx, "otp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySetNX(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return clock }

	ok, err := m.SetNX(ctx, "idem", "first", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "idem", "second", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	value, _ := m.Get(ctx, "idem")
	assert.Equal(t, "first", value)

	clock = clock.Add(2 * time.Hour)
	ok, err = m.SetNX(ctx, "idem", "third", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
