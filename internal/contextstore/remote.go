package contextstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	sberrors "github.com/r3e-labs/intentsandbox/infrastructure/errors"
)

// RemoteConfig configures the remote key-value backend.
type RemoteConfig struct {
	MaxValueSize int
}

// RemoteStore dispatches to a key-value server over go-redis, the
// persistent backend named in §6's "Persisted state" — schema is the
// mapping of session:{id}:{key} to the raw stored value with an attached
// TTL, which maps directly onto Redis SETEX semantics.
type RemoteStore struct {
	client redis.UniversalClient
	cfg    RemoteConfig
}

// NewRemoteStore wraps an already-constructed client (a *redis.Client for
// production, or a client pointed at a miniredis instance in tests).
func NewRemoteStore(client redis.UniversalClient, cfg RemoteConfig) *RemoteStore {
	return &RemoteStore{client: client, cfg: cfg}
}

func (s *RemoteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, sberrors.BackendUnavailable("remote_kv", err)
	}
	return v, true, nil
}

func (s *RemoteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkSize(value, s.cfg.MaxValueSize); err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return sberrors.BackendUnavailable("remote_kv", err)
	}
	return nil
}

func (s *RemoteStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return sberrors.BackendUnavailable("remote_kv", err)
	}
	return nil
}

func (s *RemoteStore) Size(ctx context.Context) (int, error) {
	n, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return 0, sberrors.BackendUnavailable("remote_kv", err)
	}
	return int(n), nil
}

// ClearSession scans for the session's key prefix and pipelines the
// deletes. Idempotent: a second call finds nothing left to scan and
// succeeds trivially.
func (s *RemoteStore) ClearSession(ctx context.Context, sessionID string) error {
	prefix := SessionPrefix(sessionID)
	var cursor uint64
	keys := make([]string, 0, 64)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return sberrors.BackendUnavailable("remote_kv", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return sberrors.BackendUnavailable("remote_kv", err)
	}
	return nil
}
