package contextstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestRemoteStore(t *testing.T) (*RemoteStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRemoteStore(client, RemoteConfig{}), mr
}

func TestRemoteStore_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRemoteStore(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestRemoteStore_ExpiredReadsReturnAbsent(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRemoteStore(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoteStore_ClearSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRemoteStore(t)

	require.NoError(t, store.Set(ctx, SessionPrefix("s1")+"a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, SessionPrefix("s1")+"b", []byte("2"), time.Minute))
	require.NoError(t, store.Set(ctx, "other", []byte("3"), time.Minute))

	require.NoError(t, store.ClearSession(ctx, "s1"))
	require.NoError(t, store.ClearSession(ctx, "s1"))

	_, ok, _ := store.Get(ctx, "other")
	require.True(t, ok)
	_, ok, _ = store.Get(ctx, SessionPrefix("s1")+"a")
	require.False(t, ok)
}
