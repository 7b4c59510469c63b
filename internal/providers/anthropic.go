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

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	Models     []string
}

// AnthropicAdapter talks to the Anthropic Messages API.
type AnthropicAdapter struct {
	client     *http.Client
	baseURL    string
	apiVersion string
	models     map[string]bool
}

var _ Adapter = (*AnthropicAdapter)(nil)

// NewAnthropicAdapter builds an AnthropicAdapter from cfg.
func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	version := cfg.APIVersion
	if version == "" {
		version = "2023-06-01"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	models := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m] = true
	}
	return &AnthropicAdapter{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiVersion: version,
		models:     models,
	}
}

func (a *AnthropicAdapter) ID() string                    { return "anthropic" }
func (a *AnthropicAdapter) ReportsUsage() bool             { return true }
func (a *AnthropicAdapter) Supports(modelID string) bool   { return a.models[modelID] }

type anthropicWireContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicWireMessage struct {
	Role    string                      `json:"role"`
	Content []anthropicWireContentBlock `json:"content"`
}

type anthropicWireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicRequest struct {
	Model       string                  `json:"model"`
	System      string                  `json:"system,omitempty"`
	Messages    []anthropicWireMessage  `json:"messages"`
	Tools       []anthropicWireTool     `json:"tools,omitempty"`
	Temperature *float64                `json:"temperature,omitempty"`
	MaxTokens   int                     `json:"max_tokens"`
	Stream      bool                    `json:"stream"`
}

// Invoke builds and issues the Messages API request, returning the raw SSE
// body for internal/stream.Decode(dialect=Anthropic).
func (a *AnthropicAdapter) Invoke(ctx context.Context, req core.Request, secret Secret) (io.ReadCloser, stream.Dialect, error) {
	if !a.Supports(req.Model) {
		return nil, "", errUnsupportedModel(a.ID(), req.Model)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	system, messages := toAnthropicMessages(req.Messages)
	payload := anthropicRequest{
		Model:       req.Model,
		System:      system,
		Messages:    messages,
		Tools:       toAnthropicTools(req.Tools),
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "marshal anthropic request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "build anthropic request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", secret.Value)
	httpReq.Header.Set("anthropic-version", a.apiVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, "", core.NewError(core.KindNetwork, "anthropic request failed", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", &core.Error{
			Kind:     core.KindProviderError,
			Message:  fmt.Sprintf("anthropic status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			HTTPCode: resp.StatusCode,
		}
	}
	return resp.Body, stream.Anthropic, nil
}

func toAnthropicMessages(msgs []core.ChatMessage) (system string, out []anthropicWireMessage) {
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Text()
			continue
		}

		wm := anthropicWireMessage{Role: string(m.Role)}
		if m.Role == core.RoleTool {
			wm.Role = "user"
			wm.Content = append(wm.Content, anthropicWireContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Text(),
			})
			out = append(out, wm)
			continue
		}

		if text := m.Text(); text != "" {
			wm.Content = append(wm.Content, anthropicWireContentBlock{Type: "text", Text: text})
		}
		for _, tc := range m.ToolCalls {
			wm.Content = append(wm.Content, anthropicWireContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Arguments,
			})
		}
		out = append(out, wm)
	}
	return system, out
}

func toAnthropicTools(tools []core.ToolSpec) []anthropicWireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicWireTool, len(tools))
	for i, t := range tools {
		out[i] = anthropicWireTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
	}
	return out
}
