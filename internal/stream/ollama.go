package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

type ollamaEvent struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done           bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// decodeOllama implements the Ollama dialect: newline-delimited JSON
// (no SSE framing, no "data:" prefix), content at message.content, no tool
// calls (Ollama is not used for tool-bearing requests by this core), end
// sentinel a `"done": true` field, usage on prompt_eval_count/eval_count.
func decodeOllama(ctx context.Context, r io.Reader, out chan<- core.StreamChunk) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var payload ollamaEvent
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			emit(ctx, out, core.StreamChunk{Err: err})
			return nil
		}

		chunk := core.StreamChunk{ContentDelta: payload.Message.Content}
		if payload.Done {
			chunk.FinishReason = core.FinishStop
			chunk.Usage = &core.Usage{
				PromptTokens:     payload.PromptEvalCount,
				CompletionTokens: payload.EvalCount,
			}
		}
		if !emit(ctx, out, chunk) {
			return nil
		}
		if payload.Done {
			return nil
		}
	}
	return scanner.Err()
}
