package stream

import (
	"context"
	"encoding/json"
	"io"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

type anthropicContentBlockStart struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
}

type anthropicContentBlockDelta struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

type anthropicMessageStart struct {
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

type anthropicMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// decodeAnthropic implements the Anthropic dialect: SSE events typed via
// `event:`, content at delta.text on content_block_delta, tool_use blocks
// announced on content_block_start then assembled via input_json_delta on
// content_block_delta, end sentinel the message_stop event, usage split
// across message_start (input) and message_delta (output).
func decodeAnthropic(ctx context.Context, r io.Reader, out chan<- core.StreamChunk) error {
	var inputTokens, outputTokens int
	var stopReason string

	return scanSSE(r, func(ev sseEvent) bool {
		if ev.Data == "" {
			return false
		}

		switch ev.Type {
		case "message_start":
			var payload anthropicMessageStart
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				emit(ctx, out, core.StreamChunk{Err: err})
				return true
			}
			inputTokens = payload.Message.Usage.InputTokens
			return false

		case "content_block_start":
			var payload anthropicContentBlockStart
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				emit(ctx, out, core.StreamChunk{Err: err})
				return true
			}
			if payload.ContentBlock.Type != "tool_use" {
				return false
			}
			return !emit(ctx, out, core.StreamChunk{
				ToolCallDeltas: []core.ToolCallDelta{{
					Index: payload.Index,
					ID:    payload.ContentBlock.ID,
					Name:  payload.ContentBlock.Name,
				}},
			})

		case "content_block_delta":
			var payload anthropicContentBlockDelta
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				emit(ctx, out, core.StreamChunk{Err: err})
				return true
			}
			switch payload.Delta.Type {
			case "text_delta":
				return !emit(ctx, out, core.StreamChunk{ContentDelta: payload.Delta.Text})
			case "input_json_delta":
				return !emit(ctx, out, core.StreamChunk{
					ToolCallDeltas: []core.ToolCallDelta{{
						Index:     payload.Index,
						ArgsDelta: payload.Delta.PartialJSON,
					}},
				})
			}
			return false

		case "message_delta":
			var payload anthropicMessageDelta
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				emit(ctx, out, core.StreamChunk{Err: err})
				return true
			}
			stopReason = payload.Delta.StopReason
			outputTokens = payload.Usage.OutputTokens
			return false

		case "message_stop":
			emit(ctx, out, core.StreamChunk{
				FinishReason: mapAnthropicFinish(stopReason),
				Usage: &core.Usage{
					PromptTokens:     inputTokens,
					CompletionTokens: outputTokens,
				},
			})
			return true

		default:
			// ping, content_block_stop, and any future event types carry no
			// information the core needs.
			return false
		}
	})
}

func mapAnthropicFinish(reason string) core.FinishReason {
	switch reason {
	case "tool_use":
		return core.FinishToolCalls
	case "max_tokens":
		return core.FinishLength
	case "end_turn", "stop_sequence":
		return core.FinishStop
	default:
		return core.FinishStop
	}
}
