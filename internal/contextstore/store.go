// Package contextstore implements the bounded, TTL-governed mapping shared
// across sessions (component B), pluggable behind an in-process or remote
// key-value backend.
package contextstore

import (
	"context"
	"time"

	sberrors "github.com/r3e-labs/intentsandbox/infrastructure/errors"
)

// MaxValueSize is the default per-entry size ceiling (§3, Context Entry
// invariants).
const MaxValueSize = 100 * 1024

// Entry is one context store record.
type Entry struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	TTL       time.Duration
	SizeBytes int
}

// Expired reports whether e is past its TTL as of now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Store is the operation surface every backend implements. All operations
// are logically atomic with respect to other operations on the same key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Size(ctx context.Context) (int, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// SessionPrefix builds the key prefix for a session, matching the
// session:{id}: namespacing rule of §3/§4.G.
func SessionPrefix(sessionID string) string {
	return "session:" + sessionID + ":"
}

// checkSize validates a write against the configured maximum before any
// state change, per the payload_too_large invariant.
func checkSize(value []byte, maxSize int) error {
	if maxSize <= 0 {
		maxSize = MaxValueSize
	}
	if len(value) > maxSize {
		return sberrors.PayloadTooLarge(maxSize, len(value))
	}
	return nil
}
