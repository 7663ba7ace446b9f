package orchestrator

import "context"

// ProtocolCollaborator is the narrow interface onto the external
// collaborator that handles protocol_only routing and hybrid-mode
// fallback. It is an out-of-scope external collaborator per §1 — the
// orchestrator only ever calls this one method.
type ProtocolCollaborator interface {
	Dispatch(ctx context.Context, intent string, params map[string]any, sessionID string) (map[string]any, error)
}
