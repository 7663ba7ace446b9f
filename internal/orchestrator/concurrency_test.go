package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_DisabledWhenCapIsZero(t *testing.T) {
	l := newLimiter(0, 0)
	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestLimiter_QueueOverflowIsOverloaded(t *testing.T) {
	l := newLimiter(1, 0)

	release, err := l.acquire(context.Background())
	require.NoError(t, err)

	_, err = l.acquire(context.Background())
	assert.Error(t, err, "with zero queue room, a second concurrent acquire must fail fast as overloaded")

	release()
}

func TestLimiter_ReleaseFreesSlotForNextAcquire(t *testing.T) {
	l := newLimiter(1, 0)

	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	release()

	release2, err := l.acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestLimiter_AcquireRespectsContextCancellation(t *testing.T) {
	l := newLimiter(1, 1)

	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	defer release()

	// The waiting room has room for one more ticket, but the single slot
	// stays held, so this acquire must block until ctx is cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
