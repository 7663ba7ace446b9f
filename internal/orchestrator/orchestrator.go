// Package orchestrator implements the Execution Orchestrator (component F):
// the single public entry point that routes an Intent through the cache,
// capability index, materializer, and sandbox, and shapes the final
// Structured Response.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/r3e-labs/intentsandbox/infrastructure/config"
	sberrors "github.com/r3e-labs/intentsandbox/infrastructure/errors"
	"github.com/r3e-labs/intentsandbox/infrastructure/logging"
	"github.com/r3e-labs/intentsandbox/internal/capability"
	"github.com/r3e-labs/intentsandbox/internal/contextstore"
	"github.com/r3e-labs/intentsandbox/internal/materializer"
	"github.com/r3e-labs/intentsandbox/internal/sandbox"
	"github.com/r3e-labs/intentsandbox/internal/telemetry"
)

// Orchestrator implements the single execute_intent operation.
type Orchestrator struct {
	cfg       config.Flags
	index     *capability.Index
	cache     contextstore.Store
	backend   sandbox.Backend
	protocol  ProtocolCollaborator
	telemetry *telemetry.Registry
	audit     *telemetry.AuditSink
	log       *logging.Logger
	limiter   *limiter
}

// New builds an Orchestrator. protocol may be nil; a call that then reaches
// the protocol path (protocol_only mode, or a hybrid-mode fallback) gets an
// internal_error response.
func New(
	cfg config.Flags,
	index *capability.Index,
	cache contextstore.Store,
	backend sandbox.Backend,
	protocol ProtocolCollaborator,
	reg *telemetry.Registry,
	audit *telemetry.AuditSink,
	log *logging.Logger,
) *Orchestrator {
	queueSize := cfg.ConcurrencyCap // a same-sized waiting room by default
	return &Orchestrator{
		cfg:       cfg,
		index:     index,
		cache:     cache,
		backend:   backend,
		protocol:  protocol,
		telemetry: reg,
		audit:     audit,
		log:       log,
		limiter:   newLimiter(cfg.ConcurrencyCap, queueSize),
	}
}

// routeOutcome carries everything the post-execution ordering step needs,
// decoupled from how the response was produced.
type routeOutcome struct {
	response       *Response
	outcomeLabel   string
	resourceKind   string
	cacheKey       string
	cacheable      bool
	isValidationErr bool
}

// ExecuteIntent is the orchestrator's one public operation. It implements
// the five-step routing algorithm verbatim and enforces the ordering
// guarantee — execute, then record outcome telemetry, then write cache,
// then emit the audit event, then return — as a strict sequence inside
// this single function rather than as a convention callers must uphold.
func (o *Orchestrator) ExecuteIntent(ctx context.Context, intent string, params map[string]any, sessionID string) (*Response, error) {
	traceID := logging.NewTraceID()
	ctx = logging.WithTraceID(ctx, traceID)
	if sessionID != "" {
		ctx = logging.WithSessionID(ctx, sessionID)
	}

	start := time.Now()
	o.telemetry.RecordRequest(string(o.cfg.Mode))

	deadline := o.cfg.MaxExecutionTime
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	out := o.route(execCtx, intent, params, sessionID, traceID, start)

	if !out.isValidationErr {
		o.telemetry.RecordOutcome(out.outcomeLabel, out.resourceKind)
	}
	if out.cacheable {
		if data, err := json.Marshal(out.response); err == nil {
			_ = o.cache.Set(ctx, out.cacheKey, data, o.cfg.CacheTTL)
		}
	}
	o.audit.EmitTerminalOnce(telemetry.AuditEvent{
		TraceID:   traceID,
		Event:     "execute_intent",
		SessionID: sessionID,
		Intent:    intent,
		Outcome:   out.outcomeLabel,
	})

	return out.response, nil
}

func (o *Orchestrator) route(ctx context.Context, intent string, params map[string]any, sessionID, traceID string, start time.Time) routeOutcome {
	md := func(tokens int, cacheHit bool, mode string) Metadata {
		return Metadata{
			TokensUsed:      tokens,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
			CacheHit:        cacheHit,
			Mode:            mode,
			TraceID:         traceID,
		}
	}

	// Step 2: token budget, before any side effect.
	tokens, err := estimateTokens(intent, params)
	if err != nil {
		return validationOutcome(errorResponse(string(sberrors.CodeInvalidRequest), err.Error(), md(0, false, string(o.cfg.Mode))))
	}
	o.telemetry.ObserveTokensEstimated(tokens)
	if o.cfg.MaxTokensPerReq > 0 && tokens > o.cfg.MaxTokensPerReq {
		se := sberrors.TokenLimitExceeded(o.cfg.MaxTokensPerReq, tokens)
		return validationOutcome(errorResponse(string(se.Code), se.Message, md(tokens, false, string(o.cfg.Mode))))
	}

	// Step 3: cache lookup on (intent, normalized(params)).
	key, err := cacheKey(intent, params)
	if err != nil {
		return validationOutcome(errorResponse(string(sberrors.CodeInvalidRequest), err.Error(), md(tokens, false, string(o.cfg.Mode))))
	}
	if raw, hit, err := o.cache.Get(ctx, key); err == nil && hit {
		o.telemetry.RecordCacheHit(true)
		var cached Response
		if err := json.Unmarshal(raw, &cached); err == nil {
			cached.Metadata = md(tokens, true, cached.Metadata.Mode)
			return routeOutcome{response: &cached, outcomeLabel: "cache_hit"}
		}
	}
	o.telemetry.RecordCacheHit(false)

	release, err := o.limiter.acquire(ctx)
	if err != nil {
		o.telemetry.RecordOverloaded()
		se := sberrors.Overloaded()
		return validationOutcome(errorResponse(string(se.Code), se.Message, md(tokens, false, string(o.cfg.Mode))))
	}
	defer release()

	// Step 4: dispatch by mode.
	switch o.cfg.Mode {
	case config.ModeProtocolOnly:
		return o.runProtocol(ctx, intent, params, sessionID, key, md, tokens)

	case config.ModeCodeExecution:
		return o.runCodeExecution(ctx, intent, params, key, md, tokens)

	case config.ModeHybrid:
		out := o.runCodeExecution(ctx, intent, params, key, md, tokens)
		switch out.outcomeLabel {
		case "rejected", "internal_error", "unknown_intent":
			// Infrastructure/index failures only: fall back once. Any other
			// sandbox outcome (completed, timed_out, resource_exceeded) is
			// authoritative and returned as-is, per the hybrid contract.
			return o.runProtocol(ctx, intent, params, sessionID, key, md, tokens)
		default:
			return out
		}

	default:
		se := sberrors.InvalidRequest("unrecognized mode")
		return validationOutcome(errorResponse(string(se.Code), se.Message, md(tokens, false, string(o.cfg.Mode))))
	}
}

func (o *Orchestrator) runProtocol(ctx context.Context, intent string, params map[string]any, sessionID, key string, md func(int, bool, string) Metadata, tokens int) routeOutcome {
	if o.protocol == nil {
		se := sberrors.Internal("no protocol collaborator configured", nil)
		return routeOutcome{
			response:     errorResponse(string(se.Code), se.Message, md(tokens, false, "protocol")),
			outcomeLabel: "internal_error",
		}
	}

	data, err := o.protocol.Dispatch(ctx, intent, params, sessionID)
	if err != nil {
		se := sberrors.Internal("protocol collaborator failed", err)
		return routeOutcome{
			response:     errorResponse(string(se.Code), se.Message, md(tokens, false, "protocol")),
			outcomeLabel: "internal_error",
		}
	}

	resp := successResponse(ResultPayload{Status: "completed", Data: data}, "", md(tokens, false, "protocol"))
	return routeOutcome{response: resp, outcomeLabel: "completed", cacheable: true, cacheKey: key}
}

func (o *Orchestrator) runCodeExecution(ctx context.Context, intent string, params map[string]any, key string, md func(int, bool, string) Metadata, tokens int) routeOutcome {
	entry, ok := o.index.Lookup(intent)
	if !ok {
		se := sberrors.UnknownIntent(intent)
		return routeOutcome{
			response:        errorResponse(string(se.Code), se.Message, md(tokens, false, "code_execution")),
			outcomeLabel:    "unknown_intent",
			isValidationErr: true,
		}
	}

	template, ok := o.index.Template(entry.TemplateID)
	if !ok {
		se := sberrors.UnknownIntent(intent)
		return routeOutcome{
			response:        errorResponse(string(se.Code), se.Message, md(tokens, false, "code_execution")),
			outcomeLabel:    "unknown_intent",
			isValidationErr: true,
		}
	}

	code, err := materializer.Materialize(template, params)
	if err != nil {
		se := sberrors.As(err)
		if se == nil {
			se = sberrors.Internal("materialization failed", err)
		}
		return validationOutcome(errorResponse(string(se.Code), se.Message, md(tokens, false, "code_execution")))
	}

	req := sandbox.ExecutionRequest{
		Code:         code,
		TimeoutMS:    int(o.cfg.MaxExecutionTime.Milliseconds()),
		MemoryBytes:  o.cfg.MaxMemoryBytes,
		ProcessLimit: o.cfg.MaxProcessCount,
		FSPolicy: sandbox.FilesystemPolicy{
			ReadOnlyRoot:  true,
			ScratchDir:    "/scratch",
			ScratchBytes:  o.cfg.MaxOutputBytes,
			CodeMountPath: "/code/program",
		},
		NetPolicy: sandbox.NetworkDenyAll,
	}

	result, err := sandbox.Execute(ctx, o.backend, req)
	if err != nil && result == nil {
		se := sberrors.Internal("sandbox execution failed", err)
		return routeOutcome{
			response:     errorResponse(string(se.Code), se.Message, md(tokens, false, "code_execution")),
			outcomeLabel: "internal_error",
		}
	}

	o.telemetry.ObserveExecutionDuration(o.backend.Name(), float64(result.WallTimeMS)/1000)
	o.telemetry.ObserveOutputBytes("stdout", len(result.StdoutBytes))
	o.telemetry.ObserveOutputBytes("stderr", len(result.StderrBytes))

	data := map[string]any{
		"stdout_bytes":     string(result.StdoutBytes),
		"stderr_bytes":     string(result.StderrBytes),
		"wall_time_ms":     result.WallTimeMS,
		"stdout_truncated": result.StdoutTruncated,
		"stderr_truncated": result.StderrTruncated,
	}
	if result.ExitCode != nil {
		data["exit_code"] = *result.ExitCode
	}

	switch result.Status {
	case sandbox.StatusCompleted:
		resp := successResponse(ResultPayload{Status: "completed", Data: data}, "", md(tokens, false, "code_execution"))
		return routeOutcome{response: resp, outcomeLabel: "completed", cacheable: true, cacheKey: key}

	case sandbox.StatusTimedOut, sandbox.StatusResourceExceeded:
		// Authoritative job outcomes, not infrastructure failures: returned
		// as a result, not an error, and never trigger hybrid fallback.
		resp := successResponse(ResultPayload{Status: string(result.Status), Data: data}, "", md(tokens, false, "code_execution"))
		return routeOutcome{
			response:     resp,
			outcomeLabel: string(result.Status),
			resourceKind: string(result.ResourceKind),
		}

	case sandbox.StatusRejected:
		se := sberrors.SandboxRejection("sandbox refused the execution request")
		return routeOutcome{
			response:     errorResponse(string(se.Code), se.Message, md(tokens, false, "code_execution")),
			outcomeLabel: "rejected",
		}

	default: // StatusInternalError
		se := sberrors.Internal("sandbox execution failed", nil)
		return routeOutcome{
			response:     errorResponse(string(se.Code), se.Message, md(tokens, false, "code_execution")),
			outcomeLabel: "internal_error",
		}
	}
}

func validationOutcome(resp *Response) routeOutcome {
	return routeOutcome{response: resp, isValidationErr: true}
}
