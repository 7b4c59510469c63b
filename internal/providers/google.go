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

// GoogleConfig configures the Google (Gemini) adapter.
type GoogleConfig struct {
	BaseURL string
	Timeout time.Duration
	Models  []string
}

// GoogleAdapter talks to the Gemini generateContent streaming endpoint.
type GoogleAdapter struct {
	client  *http.Client
	baseURL string
	models  map[string]bool
}

var _ Adapter = (*GoogleAdapter)(nil)

// NewGoogleAdapter builds a GoogleAdapter from cfg.
func NewGoogleAdapter(cfg GoogleConfig) *GoogleAdapter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	models := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m] = true
	}
	return &GoogleAdapter{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		models:  models,
	}
}

func (a *GoogleAdapter) ID() string                  { return "google" }
func (a *GoogleAdapter) ReportsUsage() bool           { return true }
func (a *GoogleAdapter) Supports(modelID string) bool { return a.models[modelID] }

type googleWirePart struct {
	Text         string          `json:"text,omitempty"`
	FunctionCall *googleFnCall   `json:"functionCall,omitempty"`
	FunctionResp *googleFnResult `json:"functionResponse,omitempty"`
}

type googleFnCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type googleFnResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type googleWireContent struct {
	Role  string           `json:"role"`
	Parts []googleWirePart `json:"parts"`
}

type googleFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type googleTool struct {
	FunctionDeclarations []googleFunctionDeclaration `json:"functionDeclarations"`
}

type googleGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	Contents          []googleWireContent     `json:"contents"`
	SystemInstruction *googleWireContent      `json:"systemInstruction,omitempty"`
	Tools             []googleTool            `json:"tools,omitempty"`
	GenerationConfig  *googleGenerationConfig `json:"generationConfig,omitempty"`
}

// Invoke builds and issues the streamGenerateContent request, returning the
// raw SSE body for internal/stream.Decode(dialect=Google).
func (a *GoogleAdapter) Invoke(ctx context.Context, req core.Request, secret Secret) (io.ReadCloser, stream.Dialect, error) {
	if !a.Supports(req.Model) {
		return nil, "", errUnsupportedModel(a.ID(), req.Model)
	}

	system, contents := toGoogleContents(req.Messages)
	payload := googleRequest{
		Contents:          contents,
		SystemInstruction: system,
		Tools:             toGoogleTools(req.Tools),
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		payload.GenerationConfig = &googleGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "marshal google request", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", a.baseURL, req.Model, secret.Value)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "build google request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, "", core.NewError(core.KindNetwork, "google request failed", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", &core.Error{
			Kind:     core.KindProviderError,
			Message:  fmt.Sprintf("google status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			HTTPCode: resp.StatusCode,
		}
	}
	return resp.Body, stream.Google, nil
}

func toGoogleContents(msgs []core.ChatMessage) (system *googleWireContent, out []googleWireContent) {
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			if system == nil {
				system = &googleWireContent{Role: "user"}
			}
			system.Parts = append(system.Parts, googleWirePart{Text: m.Text()})
			continue
		}

		role := "user"
		if m.Role == core.RoleAssistant {
			role = "model"
		}
		wc := googleWireContent{Role: role}

		if m.Role == core.RoleTool {
			wc.Parts = append(wc.Parts, googleWirePart{
				FunctionResp: &googleFnResult{Name: m.ToolCallID, Response: map[string]any{"content": m.Text()}},
			})
			out = append(out, wc)
			continue
		}

		if text := m.Text(); text != "" {
			wc.Parts = append(wc.Parts, googleWirePart{Text: text})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(tc.Arguments, &args)
			wc.Parts = append(wc.Parts, googleWirePart{FunctionCall: &googleFnCall{Name: tc.Name, Args: args}})
		}
		out = append(out, wc)
	}
	return system, out
}

func toGoogleTools(tools []core.ToolSpec) []googleTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]googleFunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = googleFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return []googleTool{{FunctionDeclarations: decls}}
}
