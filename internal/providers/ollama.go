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

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
	Models  []string
}

// OllamaAdapter talks to a local or self-hosted Ollama instance. Ollama is
// not used for tool-bearing requests by this core (see the dialect table);
// Invoke still accepts a Request with Tools set but the wire message never
// carries them.
type OllamaAdapter struct {
	client  *http.Client
	baseURL string
	models  map[string]bool
}

var _ Adapter = (*OllamaAdapter)(nil)

// NewOllamaAdapter builds an OllamaAdapter from cfg.
func NewOllamaAdapter(cfg OllamaConfig) *OllamaAdapter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	models := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m] = true
	}
	return &OllamaAdapter{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		models:  models,
	}
}

func (a *OllamaAdapter) ID() string                  { return "ollama" }
func (a *OllamaAdapter) ReportsUsage() bool           { return true }
func (a *OllamaAdapter) Supports(modelID string) bool { return a.models[modelID] }

type ollamaWireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaWireRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaWireMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

// Invoke builds and issues the /api/chat request, returning the raw
// newline-delimited-JSON body for internal/stream.Decode(dialect=Ollama).
func (a *OllamaAdapter) Invoke(ctx context.Context, req core.Request, secret Secret) (io.ReadCloser, stream.Dialect, error) {
	if !a.Supports(req.Model) {
		return nil, "", errUnsupportedModel(a.ID(), req.Model)
	}

	payload := ollamaWireRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "marshal ollama request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, "", core.NewError(core.KindProviderError, "build ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, "", core.NewError(core.KindNetwork, "ollama request failed", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", &core.Error{
			Kind:     core.KindProviderError,
			Message:  fmt.Sprintf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			HTTPCode: resp.StatusCode,
		}
	}
	return resp.Body, stream.Ollama, nil
}

func toOllamaMessages(msgs []core.ChatMessage) []ollamaWireMessage {
	out := make([]ollamaWireMessage, 0, len(msgs))
	for _, m := range msgs {
		role := string(m.Role)
		if m.Role == core.RoleTool {
			role = "tool"
		}
		out = append(out, ollamaWireMessage{Role: role, Content: m.Text()})
	}
	return out
}
