package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/r3e-labs/intentsandbox/infrastructure/config"
)

// inProcessBackend runs code inside a goja VM in the calling process.
// Development only: NewBackend refuses to construct this tier when the
// process believes it is running in production.
type inProcessBackend struct {
	cfg config.Flags
	mu  sync.Mutex
	all map[string]*inProcessCall
}

type inProcessCall struct {
	id     string
	req    ExecutionRequest
	stdout *capturedStream
	stderr *capturedStream
	done   chan struct{}
	result *ExecutionResult
	stop   chan struct{}
}

func (c *inProcessCall) ID() string { return c.id }

func newInProcessBackend(cfg config.Flags) *inProcessBackend {
	return &inProcessBackend{cfg: cfg, all: make(map[string]*inProcessCall)}
}

func (b *inProcessBackend) Name() string { return "in_process" }

func (b *inProcessBackend) Launch(ctx context.Context, req ExecutionRequest) (Handle, error) {
	call := &inProcessCall{
		id:     fmt.Sprintf("inproc-%d", time.Now().UnixNano()),
		req:    req,
		stdout: newCapturedStream(int(b.cfg.MaxOutputBytes)),
		stderr: newCapturedStream(int(b.cfg.MaxOutputBytes)),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}

	b.mu.Lock()
	b.all[call.id] = call
	b.mu.Unlock()

	go b.run(ctx, call)
	return call, nil
}

// run executes the script on a goja.Runtime. Deadline enforcement follows
// the interrupt-on-ctx.Done pattern: a watcher goroutine calls
// rt.Interrupt(ctx.Err()) the instant the context is cancelled, which is
// independent of the interpreter's own execution — an infinite loop in the
// guest script still gets interrupted because goja checks for an
// interrupt flag between bytecode instructions, not because the script
// cooperates.
func (b *inProcessBackend) run(ctx context.Context, call *inProcessCall) {
	defer close(call.done)

	deadline := time.Duration(call.req.TimeoutMS) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	rt := goja.New()
	_ = rt.Set("console", map[string]interface{}{
		"log": func(args ...interface{}) {
			fmt.Fprintln(call.stdout, args...)
		},
		"error": func(args ...interface{}) {
			fmt.Fprintln(call.stderr, args...)
		},
	})

	watcherStop := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			rt.Interrupt(runCtx.Err())
		case <-watcherStop:
		}
	}()

	start := time.Now()
	_, err := rt.RunString(call.req.Code)
	close(watcherStop)
	elapsed := time.Since(start).Milliseconds()

	result := &ExecutionResult{
		StdoutBytes:     call.stdout.Bytes(),
		StderrBytes:     call.stderr.Bytes(),
		StdoutTruncated: call.stdout.Truncated(),
		StderrTruncated: call.stderr.Truncated(),
		WallTimeMS:      elapsed,
	}

	switch {
	case err == nil:
		zero := 0
		result.Status = StatusCompleted
		result.ExitCode = &zero
	case runCtx.Err() == context.DeadlineExceeded:
		result.Status = StatusTimedOut
	default:
		if _, ok := err.(*goja.InterruptedError); ok && runCtx.Err() != nil {
			result.Status = StatusTimedOut
		} else {
			result.Status = StatusCompleted
			nonZero := 1
			result.ExitCode = &nonZero
		}
	}

	call.result = result
}

func (b *inProcessBackend) Wait(ctx context.Context, h Handle) (*ExecutionResult, error) {
	call := h.(*inProcessCall)
	select {
	case <-call.done:
		return call.result, nil
	case <-ctx.Done():
		return &ExecutionResult{Status: StatusTimedOut}, ctx.Err()
	}
}

func (b *inProcessBackend) Kill(h Handle) error {
	call := h.(*inProcessCall)
	select {
	case <-call.stop:
	default:
		close(call.stop)
	}
	return nil
}

func (b *inProcessBackend) Reap(h Handle) error {
	call := h.(*inProcessCall)
	b.mu.Lock()
	delete(b.all, call.id)
	b.mu.Unlock()
	return nil
}
