package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/stream"
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	BaseURL string
	Timeout time.Duration
	// Models lists the model IDs this adapter claims; empty means "serve
	// anything not claimed by a more specific adapter" is NOT assumed —
	// Supports returns false for an empty list.
	Models []string
}

// OpenAIAdapter talks to the OpenAI chat completions API (and any
// OpenAI-compatible gateway pointed at by BaseURL).
type OpenAIAdapter struct {
	client  *http.Client
	baseURL string
	models  map[string]bool
}

var _ Adapter = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter builds an OpenAIAdapter from cfg.
func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	models := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m] = true
	}
	return &OpenAIAdapter{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		models:  models,
	}
}

func (a *OpenAIAdapter) ID() string           { return "openai" }
func (a *OpenAIAdapter) ReportsUsage() bool    { return true }
func (a *OpenAIAdapter) Supports(modelID string) bool {
	return a.models[modelID]
}

type openAIChatMessage struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	ToolCalls  []openAIWireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

type openAIWireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Tools       []openAITool        `json:"tools,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream"`
}

// Invoke builds and issues the chat completion request, returning the raw
// SSE body for internal/stream.Decode(dialect=OpenAI) to consume.
func (a *OpenAIAdapter) Invoke(ctx context.Context, req core.Request, secret Secret) (io.ReadCloser, stream.Dialect, error) {
	if !a.Supports(req.Model) {
		return nil, "", errUnsupportedModel(a.ID(), req.Model)
	}

	payload := openAIChatRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       toOpenAITools(req.Tools),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "marshal openai request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "build openai request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+secret.Value)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, "", core.NewError(core.KindNetwork, "openai request failed", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", &core.Error{
			Kind:     core.KindProviderError,
			Message:  fmt.Sprintf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			HTTPCode: resp.StatusCode,
		}
	}
	return resp.Body, stream.OpenAI, nil
}

func toOpenAIMessages(msgs []core.ChatMessage) []openAIChatMessage {
	out := make([]openAIChatMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := openAIChatMessage{Role: string(m.Role), Content: m.Text(), ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wtc := openAIWireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toOpenAITools(tools []core.ToolSpec) []openAITool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAITool, len(tools))
	for i, t := range tools {
		out[i].Type = "function"
		out[i].Function.Name = t.Name
		out[i].Function.Description = t.Description
		out[i].Function.Parameters = t.Parameters
	}
	return out
}
