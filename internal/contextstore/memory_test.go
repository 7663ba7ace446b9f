package contextstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sberrors "github.com/r3e-labs/intentsandbox/infrastructure/errors"
)

func TestMemoryStore_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryConfig{})

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ExpiredReadsReturnAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryConfig{})

	require.NoError(t, s.Set(ctx, "k", []byte("v"), -time.Second))
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_PayloadTooLargeLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryConfig{MaxValueSize: 4})

	require.NoError(t, s.Set(ctx, "k", []byte("abcd"), time.Minute))
	err := s.Set(ctx, "k", []byte("abcde"), time.Minute)
	require.Error(t, err)

	se := sberrors.As(err)
	require.NotNil(t, se)
	assert.Equal(t, sberrors.CodePayloadTooLarge, se.Code)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("abcd"), v, "the prior value must survive a rejected oversized write")
}

func TestMemoryStore_LRUEvictionOnOverflow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryConfig{MaxEntries: 2})

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Minute))
	// touch "a" so "b" becomes the least recently used
	_, _, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", []byte("3"), time.Minute))

	_, okB, _ := s.Get(ctx, "b")
	assert.False(t, okB, "b should have been evicted as the LRU entry")

	_, okA, _ := s.Get(ctx, "a")
	assert.True(t, okA)
	_, okC, _ := s.Get(ctx, "c")
	assert.True(t, okC)
}

func TestMemoryStore_ClearSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryConfig{})

	require.NoError(t, s.Set(ctx, SessionPrefix("sess1")+"a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, SessionPrefix("sess1")+"b", []byte("2"), time.Minute))
	require.NoError(t, s.Set(ctx, "other", []byte("3"), time.Minute))

	require.NoError(t, s.ClearSession(ctx, "sess1"))
	require.NoError(t, s.ClearSession(ctx, "sess1")) // idempotent

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, _ := s.Get(ctx, "other")
	assert.True(t, ok)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MemoryConfig{})

	require.NoError(t, s.Set(ctx, "expired", []byte("v"), -time.Second))
	require.NoError(t, s.Set(ctx, "fresh", []byte("v"), time.Minute))

	removed := s.Sweep()
	assert.Equal(t, 1, removed)

	n, _ := s.Size(ctx)
	assert.Equal(t, 1, n)
}
