// Package toolexec implements the ToolExecutor (component J): given a
// model-emitted tool call, it consults the PolicyEngine and RateLimiter,
// waits for approval when the policy requires it, dispatches to the Tool
// implementation under a deadline, and records every step to the Journal.
package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/orchestrator-core/internal/audit"
	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/observability"
	"github.com/haasonsaas/orchestrator-core/internal/policy"
	"github.com/haasonsaas/orchestrator-core/internal/ratelimit"
)

// Decision is an Approver's resolution for one approval_request.
type Decision int

const (
	Approved Decision = iota
	Denied
	TimedOut
)

// ApprovalRequest carries everything an Approver needs to render a decision.
type ApprovalRequest struct {
	ToolName  string
	CallerID  string
	Arguments json.RawMessage
	Risk      policy.RiskLevel
}

// Approver resolves approval_request AuditEvents raised for
// RequiresApproval tools. Implementations typically surface the request to
// a human operator (chat prompt, CLI, web UI) and block until resolved.
type Approver interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (Decision, error)
}

// Config tunes ToolExecutor behavior; every field has a spec-mandated
// default (see DefaultConfig).
type Config struct {
	// ToolLoopLimit bounds how many ToolExecuting→Routing round trips one
	// turn may take before the conversation is cut off (spec default 8).
	ToolLoopLimit int

	// StandardDeadline bounds execution of a RiskStandard tool call.
	StandardDeadline time.Duration

	// CriticalDeadline bounds execution of a RiskCritical tool call.
	CriticalDeadline time.Duration

	// ApprovalTimeout bounds how long Execute waits on an Approver before
	// treating the request as timed out (KindApprovalTimeout).
	ApprovalTimeout time.Duration

	// DefaultRatePerMinute applies when a tool's policy rule leaves
	// MaxRatePerMinute unset (0).
	DefaultRatePerMinute int
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		ToolLoopLimit:        8,
		StandardDeadline:     30 * time.Second,
		CriticalDeadline:     10 * time.Second,
		ApprovalTimeout:      60 * time.Second,
		DefaultRatePerMinute: 60,
	}
}

// ErrToolLoopLimit is returned by the caller-facing loop driver (not by
// Execute itself) when a turn exhausts ToolLoopLimit iterations without the
// assistant emitting a non-tool finish reason.
var ErrToolLoopLimit = errors.New("toolexec: tool loop limit reached")

// Executor is the ToolExecutor. Build one per process and share it
// read-only; all state it touches (policy, limiter, journal) is already
// safe for concurrent use.
type Executor struct {
	tools    map[string]core.Tool
	policy   *policy.Engine
	limiter  *ratelimit.Limiter
	journal  *audit.Journal
	approver Approver
	cfg      Config
	diag     *audit.Logger
	metrics  *observability.Metrics
}

// SetDiagnosticLogger attaches an optional human-readable diagnostic stream
// (audit.Logger) alongside the tamper-evident Journal. Unlike the Journal,
// it is not part of the hash chain and is meant for local debugging/ops
// visibility, not compliance; nil (the default) disables it.
func (e *Executor) SetDiagnosticLogger(l *audit.Logger) {
	e.diag = l
}

// SetMetrics attaches the Prometheus collector this Executor publishes
// tool-execution duration against. nil (the default) disables it.
func (e *Executor) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// New builds an Executor from its collaborators. approver may be nil if no
// registered tool ever sets RequiresApproval.
func New(tools []core.Tool, engine *policy.Engine, limiter *ratelimit.Limiter, journal *audit.Journal, approver Approver, cfg Config) *Executor {
	byName := make(map[string]core.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Executor{
		tools:    byName,
		policy:   engine,
		limiter:  limiter,
		journal:  journal,
		approver: approver,
		cfg:      cfg,
	}
}

// Outcome is what Execute returns for a single tool call: the tool-role
// message for the next Router request, plus whether the call was blocked
// before it reached the Tool.
type Outcome struct {
	// Message is the tool-role ChatMessage to append to the conversation,
	// carrying either the tool's real output or a synthesized tool-error.
	Message core.ChatMessage

	// Blocked is true when the call never reached the Tool implementation
	// (unknown tool, policy rejection, rate limit, or approval denial).
	Blocked bool
}

// Execute runs the full seven-step procedure for one model-emitted tool
// call and returns the tool-role message to feed back into the
// conversation. It never returns an error for a rejected/blocked call —
// those are reported via Outcome.Blocked and a tool-error Message, per the
// spec's "feed tool-error back" requirement. Journal write failures are
// ignored (see writeEvent), so the returned error is always nil.
func (e *Executor) Execute(ctx context.Context, call core.FinalToolCall, callerID string) (Outcome, error) {
	tool, ok := e.tools[call.Name]
	if !ok {
		return e.reject(ctx, call, callerID, audit.EventPolicyReject, policy.RiskStandard,
			core.NewError(core.KindUnknownTool, call.Name, nil))
	}

	if e.diag != nil {
		e.diag.LogToolInvocation(ctx, call.Name, call.ID, call.Arguments, callerID)
	}

	rule, hasRule := e.policy.Rule(call.Name)
	risk := policy.RiskStandard
	if hasRule {
		risk = rule.Risk
	}

	if err := e.policy.Validate(call.Name, call.Arguments); err != nil {
		return e.reject(ctx, call, callerID, audit.EventPolicyReject, risk, err)
	}

	rate := e.cfg.DefaultRatePerMinute
	if hasRule && rule.MaxRatePerMinute > 0 {
		rate = rule.MaxRatePerMinute
	}
	if e.limiter.Acquire(call.Name, callerID, rate, 60) == ratelimit.Rejected {
		if e.metrics != nil {
			e.metrics.IncRateLimitRejection(call.Name)
		}
		return e.reject(ctx, call, callerID, audit.EventRateReject, risk,
			core.NewError(core.KindRateLimited, call.Name, nil))
	}

	if hasRule && rule.RequiresApproval {
		decision, err := e.awaitApproval(ctx, call, callerID, risk)
		if err != nil {
			return Outcome{}, err
		}
		if decision != Approved {
			kind := core.KindApprovalDenied
			if decision == TimedOut {
				kind = core.KindApprovalTimeout
			}
			return e.reject(ctx, call, callerID, audit.EventToolExec, risk,
				core.NewError(kind, call.Name, nil))
		}
	}

	deadline := e.cfg.StandardDeadline
	if risk == policy.RiskCritical {
		deadline = e.cfg.CriticalDeadline
	}
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	spanCtx, span := observability.StartSpan(execCtx, "toolexec.execute",
		attribute.String("tool_name", call.Name), attribute.String("tool_call_id", call.ID))
	start := time.Now()
	result, execErr := tool.Execute(spanCtx, call.Arguments)
	duration := time.Since(start)
	observability.EndSpan(span, execErr)

	status := audit.StatusSuccess
	if execErr != nil || result.IsError {
		status = audit.StatusFailure
	}
	if e.metrics != nil {
		e.metrics.ObserveToolExecution(call.Name, string(status), duration.Seconds())
	}
	e.writeToolExecEvent(ctx, call, callerID, status, duration)

	if e.diag != nil {
		success := execErr == nil && !result.IsError
		output := result.Content
		if execErr != nil {
			output = execErr.Error()
		}
		e.diag.LogToolCompletion(ctx, call.Name, call.ID, success, output, duration, callerID)
	}

	if execErr != nil {
		return Outcome{
			Message: toolErrorMessage(call, fmt.Sprintf("tool execution failed: %v", execErr)),
			Blocked: false,
		}, nil
	}
	return Outcome{
		Message: core.ChatMessage{Role: core.RoleTool, ToolCallID: call.ID, Content: result.Content},
	}, nil
}

func (e *Executor) awaitApproval(ctx context.Context, call core.FinalToolCall, callerID string, risk policy.RiskLevel) (Decision, error) {
	e.writeEvent(ctx, audit.EventApprovalRequest, call, callerID, audit.StatusPending, nil)

	if e.approver == nil {
		return TimedOut, nil
	}

	approveCtx, cancel := context.WithTimeout(ctx, e.cfg.ApprovalTimeout)
	defer cancel()

	decision, err := e.approver.RequestApproval(approveCtx, ApprovalRequest{
		ToolName:  call.Name,
		CallerID:  callerID,
		Arguments: call.Arguments,
		Risk:      risk,
	})
	if err != nil {
		if errors.Is(approveCtx.Err(), context.DeadlineExceeded) {
			return TimedOut, nil
		}
		return Denied, nil
	}
	return decision, nil
}

func (e *Executor) reject(ctx context.Context, call core.FinalToolCall, callerID string, eventType audit.EventType, risk policy.RiskLevel, cause error) (Outcome, error) {
	e.writeEvent(ctx, eventType, call, callerID, audit.StatusBlocked, cause)
	if e.diag != nil {
		e.diag.LogToolDenied(ctx, call.Name, call.ID, cause.Error(), string(eventType), callerID)
	}
	_ = risk
	return Outcome{
		Message: toolErrorMessage(call, cause.Error()),
		Blocked: true,
	}, nil
}

func (e *Executor) writeToolExecEvent(ctx context.Context, call core.FinalToolCall, callerID string, status audit.Status, duration time.Duration) {
	e.writeEvent(ctx, audit.EventToolExec, call, callerID, status, nil)
	_ = duration // duration is not recorded in the Journal payload
}

func (e *Executor) writeEvent(ctx context.Context, eventType audit.EventType, call core.FinalToolCall, callerID string, status audit.Status, cause error) {
	if e.journal == nil {
		return
	}
	payload := audit.JournalPayload{
		CallerID:     callerID,
		ResourceType: "tool",
		ResourceID:   call.Name,
		Action:       call.ID,
		Status:       status,
	}
	if cause != nil {
		payload.Metadata = map[string]any{"error": cause.Error()}
	}
	// Journal writes are best-effort from the executor's perspective: a
	// failed audit write must not silently hide a policy rejection or a
	// successful tool call from the caller, so errors are swallowed here
	// and the Journal's own durability is out of this package's hands.
	_, _ = e.journal.Append(ctx, eventType, payload)
}

func toolErrorMessage(call core.FinalToolCall, reason string) core.ChatMessage {
	body, _ := json.Marshal(map[string]string{"error": reason})
	return core.ChatMessage{Role: core.RoleTool, ToolCallID: call.ID, Content: string(body)}
}
