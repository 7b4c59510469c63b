package toolexec

import (
	"context"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

// Routed is the subset of Router's behavior the tool loop depends on, kept
// as an interface so tests can drive the loop without a real Router.
type Routed interface {
	Route(ctx context.Context, req core.Request, prefs core.RouterPreferences, callerID string) (*core.Outcome, error)
}

// Run drives one full conversation turn: route, and for every tool call the
// assistant emits, execute it and re-enter the Router with the tool results
// appended, per the state machine `Idle → Routing → Streaming →
// (ToolExecuting → Routing)* → Done | Failed`. Run returns the final
// Outcome once the assistant emits a non-tool finish reason, or
// ErrToolLoopLimit if it never does within cfg.ToolLoopLimit iterations.
func (e *Executor) Run(ctx context.Context, router Routed, req core.Request, prefs core.RouterPreferences, callerID string) (*core.Outcome, error) {
	current := req
	for i := 0; i < e.cfg.ToolLoopLimit; i++ {
		outcome, err := router.Route(ctx, current, prefs, callerID)
		if err != nil {
			return nil, err
		}
		if len(outcome.Final.ToolCalls) == 0 {
			return outcome, nil
		}

		current = appendToolResults(current, outcome.Final)
		for _, call := range outcome.Final.ToolCalls {
			result, err := e.Execute(ctx, call, callerID)
			if err != nil {
				return nil, err
			}
			current.Messages = append(current.Messages, result.Message)
		}
	}
	return nil, ErrToolLoopLimit
}

// appendToolResults records the assistant's tool-call message so the next
// Router iteration sees it before the tool-role replies Run appends next.
func appendToolResults(req core.Request, final core.Final) core.Request {
	next := req
	next.Messages = append(append([]core.ChatMessage(nil), req.Messages...), core.ChatMessage{
		Role:      core.RoleAssistant,
		Content:   final.Content,
		ToolCalls: toolCallRefs(final.ToolCalls),
	})
	return next
}

func toolCallRefs(calls []core.FinalToolCall) []core.ToolCallRef {
	refs := make([]core.ToolCallRef, len(calls))
	for i, c := range calls {
		refs[i] = core.ToolCallRef{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	return refs
}
