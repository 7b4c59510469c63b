package stream

import (
	"context"
	"encoding/json"
	"io"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

type googlePart struct {
	Text         string `json:"text"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall"`
}

type googleEvent struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// decodeGoogle implements the Google dialect: plain SSE `data: <json>`
// lines (no event: field), content at candidates[0].content.parts[*].text,
// function calls at candidates[0].content.parts[*].functionCall (delivered
// whole, not incrementally — one ToolCallDelta per call carries its full
// arguments), end signalled by a terminal chunk carrying finishReason,
// usage on usageMetadata.
func decodeGoogle(ctx context.Context, r io.Reader, out chan<- core.StreamChunk) error {
	toolIndex := 0
	return scanSSE(r, func(ev sseEvent) bool {
		if ev.Data == "" {
			return false
		}

		var payload googleEvent
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			emit(ctx, out, core.StreamChunk{Err: err})
			return true
		}
		if len(payload.Candidates) == 0 {
			return false
		}
		candidate := payload.Candidates[0]

		chunk := core.StreamChunk{}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				chunk.ContentDelta += part.Text
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					emit(ctx, out, core.StreamChunk{Err: err})
					return true
				}
				chunk.ToolCallDeltas = append(chunk.ToolCallDeltas, core.ToolCallDelta{
					Index:     toolIndex,
					Name:      part.FunctionCall.Name,
					ArgsDelta: string(args),
				})
				toolIndex++
			}
		}

		stop := false
		if candidate.FinishReason != "" {
			chunk.FinishReason = mapGoogleFinish(candidate.FinishReason)
			if payload.UsageMetadata != nil {
				chunk.Usage = &core.Usage{
					PromptTokens:     payload.UsageMetadata.PromptTokenCount,
					CompletionTokens: payload.UsageMetadata.CandidatesTokenCount,
				}
			}
			stop = true
		}
		if !emit(ctx, out, chunk) {
			return true
		}
		return stop
	})
}

func mapGoogleFinish(reason string) core.FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return core.FinishLength
	case "STOP":
		return core.FinishStop
	default:
		return core.FinishStop
	}
}
