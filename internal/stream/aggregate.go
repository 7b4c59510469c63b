package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

// toolCallBuilder accumulates one tool call's id/name/args across chunks.
type toolCallBuilder struct {
	id, name string
	args     []byte
}

// Aggregate drains chunks, relaying each one to relay (if non-nil, so a
// caller can stream them on to its own consumer), and returns the
// concatenated content, the fully-assembled tool calls, and the terminal
// usage/finish reason. It enforces the stream invariants from §8: content
// is the concatenation of every ContentDelta, and each tool call's
// concatenated ArgsDelta must be valid JSON by the time the terminal chunk
// (non-empty FinishReason) arrives — violation surfaces as
// core.KindMalformedToolCall.
func Aggregate(ctx context.Context, chunks <-chan core.StreamChunk, relay func(core.StreamChunk)) (content string, calls []core.FinalToolCall, usage core.Usage, finish core.FinishReason, err error) {
	builders := map[int]*toolCallBuilder{}
	var order []int

	for chunk := range chunks {
		if relay != nil {
			relay(chunk)
		}
		if chunk.Err != nil {
			return "", nil, core.Usage{}, "", chunk.Err
		}

		content += chunk.ContentDelta

		for _, d := range chunk.ToolCallDeltas {
			b, ok := builders[d.Index]
			if !ok {
				b = &toolCallBuilder{}
				builders[d.Index] = b
				order = append(order, d.Index)
			}
			if d.ID != "" {
				b.id = d.ID
			}
			if d.Name != "" {
				b.name = d.Name
			}
			b.args = append(b.args, []byte(d.ArgsDelta)...)
		}

		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		}

		select {
		case <-ctx.Done():
			return "", nil, core.Usage{}, "", ctx.Err()
		default:
		}
	}

	if finish == "" {
		return "", nil, core.Usage{}, "", &core.Error{Kind: core.KindUnexpectedEnd, Message: "stream closed before a terminal chunk"}
	}

	sort.Ints(order)
	for _, idx := range order {
		b := builders[idx]
		if !json.Valid(b.args) {
			return "", nil, core.Usage{}, "", &core.Error{
				Kind:    core.KindMalformedToolCall,
				Message: fmt.Sprintf("tool call %d (%s) has invalid JSON arguments", idx, b.name),
			}
		}
		calls = append(calls, core.FinalToolCall{ID: b.id, Name: b.name, Arguments: b.args})
	}

	return content, calls, usage, finish, nil
}
