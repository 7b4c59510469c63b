package stream

import (
	"context"
	"encoding/json"
	"io"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

type openAIToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIEvent struct {
	Choices []struct {
		Delta struct {
			Content   string                 `json:"content"`
			ToolCalls []openAIToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// decodeOpenAI implements the OpenAI dialect: text/event-stream lines
// `data: <json>`, content at choices[0].delta.content, tool calls at
// choices[0].delta.tool_calls[*], end sentinel `data: [DONE]`, usage on the
// final event.
func decodeOpenAI(ctx context.Context, r io.Reader, out chan<- core.StreamChunk) error {
	return scanSSE(r, func(ev sseEvent) bool {
		if ev.Data == "" {
			return false
		}
		if ev.Data == "[DONE]" {
			return true
		}

		var payload openAIEvent
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			emit(ctx, out, core.StreamChunk{Err: err})
			return true
		}
		if len(payload.Choices) == 0 {
			return false
		}
		choice := payload.Choices[0]

		chunk := core.StreamChunk{ContentDelta: choice.Delta.Content}
		for _, tc := range choice.Delta.ToolCalls {
			chunk.ToolCallDeltas = append(chunk.ToolCallDeltas, core.ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				ArgsDelta: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != nil {
			chunk.FinishReason = mapOpenAIFinish(*choice.FinishReason)
		}
		if payload.Usage != nil {
			chunk.Usage = &core.Usage{
				PromptTokens:     payload.Usage.PromptTokens,
				CompletionTokens: payload.Usage.CompletionTokens,
			}
		}
		return !emit(ctx, out, chunk)
	})
}

func mapOpenAIFinish(reason string) core.FinishReason {
	switch reason {
	case "tool_calls":
		return core.FinishToolCalls
	case "length":
		return core.FinishLength
	case "stop":
		return core.FinishStop
	default:
		return core.FinishReason(reason)
	}
}
