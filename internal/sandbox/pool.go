package sandbox

import (
	"context"
	"sync"
)

// Pool leases pre-launched, quiescent backends per call instead of paying
// construction cost on every request. It never lends the same lease to two
// calls simultaneously, and any lease whose call did not end in
// StatusCompleted is destroyed rather than returned — per §4.E's
// concurrency note, a non-completed outcome may have left the backend in
// an unknown state.
type Pool struct {
	new  func() (Backend, error)
	size int

	mu   sync.Mutex
	free []Backend
}

// NewPool builds a pool of size backends, each constructed by new.
func NewPool(size int, new func() (Backend, error)) (*Pool, error) {
	p := &Pool{new: new, size: size}
	for i := 0; i < size; i++ {
		b, err := new()
		if err != nil {
			return nil, err
		}
		p.free = append(p.free, b)
	}
	return p, nil
}

// Lease returns a backend, constructing a fresh one if the pool is
// momentarily empty (concurrent demand above pool_size degrades to
// unpooled construction rather than blocking).
func (p *Pool) Lease(ctx context.Context) (Backend, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return b, nil
	}
	p.mu.Unlock()
	return p.new()
}

// Release returns b to the pool only if the call that used it completed
// cleanly; any other outcome destroys it instead of risking leaked state
// leaking into the next lease.
func (p *Pool) Release(b Backend, outcome Status) {
	if outcome != StatusCompleted {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.size {
		p.free = append(p.free, b)
	}
}

// pooledBackend is itself a Backend, making pooling transparent to callers
// of sandbox.Execute: one lease per call, released (or discarded) once the
// call's outcome is known. This is the fourth Backend variant, composing
// over whichever concrete tier the pool was built from rather than
// replacing it.
type pooledBackend struct {
	pool *Pool
}

// NewPooledBackend wraps pool as a Backend. Used in place of the pool's
// underlying backend whenever pool_size > 0.
func NewPooledBackend(pool *Pool) Backend {
	return &pooledBackend{pool: pool}
}

type pooledCall struct {
	backend Backend
	handle  Handle
	status  Status
}

func (c *pooledCall) ID() string { return c.handle.ID() }

func (p *pooledBackend) Name() string { return "pooled" }

func (p *pooledBackend) Launch(ctx context.Context, req ExecutionRequest) (Handle, error) {
	b, err := p.pool.Lease(ctx)
	if err != nil {
		return nil, err
	}
	h, err := b.Launch(ctx, req)
	if err != nil {
		// Nothing was actually leased out to a caller that could return it
		// via Reap, so it goes straight back rather than being leaked.
		p.pool.Release(b, StatusCompleted)
		return nil, err
	}
	return &pooledCall{backend: b, handle: h}, nil
}

func (p *pooledBackend) Wait(ctx context.Context, h Handle) (*ExecutionResult, error) {
	call := h.(*pooledCall)
	result, err := call.backend.Wait(ctx, call.handle)
	if result != nil {
		call.status = result.Status
	} else {
		call.status = StatusInternalError
	}
	return result, err
}

func (p *pooledBackend) Kill(h Handle) error {
	call := h.(*pooledCall)
	return call.backend.Kill(call.handle)
}

// Reap releases the call's leased backend back to the pool once its own
// Reap has run, using the status Wait observed to decide whether the
// backend is safe to reuse.
func (p *pooledBackend) Reap(h Handle) error {
	call := h.(*pooledCall)
	err := call.backend.Reap(call.handle)
	p.pool.Release(call.backend, call.status)
	return err
}
