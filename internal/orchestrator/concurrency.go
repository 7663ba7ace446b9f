package orchestrator

import (
	"context"

	sberrors "github.com/r3e-labs/intentsandbox/infrastructure/errors"
)

// limiter caps concurrent sandbox calls via a semaphore-bounded pool of
// workers (§5). Requests above the cap queue in a bounded waiting room;
// queue overflow is rejected with overloaded rather than blocking
// indefinitely.
type limiter struct {
	slots chan struct{}
	queue chan struct{}
}

// newLimiter builds a limiter with `cap` concurrent slots and a waiting
// room sized `queueSize`. cap<=0 disables the cap entirely (every caller
// proceeds immediately), which is the zero-value default for embedders
// that haven't set concurrency_cap.
func newLimiter(capSlots, queueSize int) *limiter {
	if capSlots <= 0 {
		return &limiter{}
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &limiter{
		slots: make(chan struct{}, capSlots),
		queue: make(chan struct{}, capSlots+queueSize),
	}
}

// acquire reserves an admission ticket (failing fast with overloaded if
// none remain) and then blocks for a concurrency slot, honoring ctx
// cancellation. A ticket is held until release, so at most cap calls run
// and at most queueSize wait. The returned release function MUST be called
// exactly once.
func (l *limiter) acquire(ctx context.Context) (func(), error) {
	if l.slots == nil {
		return func() {}, nil
	}

	select {
	case l.queue <- struct{}{}:
	default:
		return nil, sberrors.Overloaded()
	}

	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots; <-l.queue }, nil
	case <-ctx.Done():
		<-l.queue
		return nil, ctx.Err()
	}
}
