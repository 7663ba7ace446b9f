// Package session implements the Session Registry (component G): a thin
// namespacing layer over the context store.
package session

import (
	"context"
	"time"

	"github.com/r3e-labs/intentsandbox/internal/contextstore"
)

// state tracks whether a session is active or expired, the only state
// machine §4.G grants it.
type state struct {
	createdAt time.Time
	ttl       time.Duration
}

func (s state) expired(now time.Time) bool { return now.After(s.createdAt.Add(s.ttl)) }

// Registry creates sessions implicitly on first use and destroys them by
// explicit Close or TTL.
type Registry struct {
	store      contextstore.Store
	defaultTTL time.Duration
}

// NewRegistry builds a Registry over store using defaultTTL for sessions
// that don't specify their own.
func NewRegistry(store contextstore.Store, defaultTTL time.Duration) *Registry {
	return &Registry{store: store, defaultTTL: defaultTTL}
}

const markerKey = "__session_marker__"

// Touch ensures sessionID exists, creating its TTL marker on first use.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	key := contextstore.SessionPrefix(sessionID) + markerKey
	if _, ok, err := r.store.Get(ctx, key); err != nil {
		return err
	} else if ok {
		return nil
	}
	return r.store.Set(ctx, key, []byte("1"), r.defaultTTL)
}

// Active reports whether sessionID's TTL marker is still present.
func (r *Registry) Active(ctx context.Context, sessionID string) (bool, error) {
	key := contextstore.SessionPrefix(sessionID) + markerKey
	_, ok, err := r.store.Get(ctx, key)
	return ok, err
}

// Close removes every key under the session's prefix. Idempotent.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	return r.store.ClearSession(ctx, sessionID)
}

// Key namespaces a raw key under the given session.
func Key(sessionID, key string) string {
	return contextstore.SessionPrefix(sessionID) + key
}
