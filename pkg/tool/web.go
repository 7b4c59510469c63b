package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/net/ssrf"
)

// WebFetchConfig controls the web_fetch tool's limits.
type WebFetchConfig struct {
	MaxResponseBytes int
	Timeout          time.Duration
}

// WebFetchTool retrieves a URL over HTTP(S). The PolicyEngine's ValidatesURL
// check rejects disallowed schemes/hosts before this tool ever runs; it
// revalidates the resolved hostname against ssrf.ValidatePublicHostname as a
// second line of defense, since policy rules can be misconfigured or absent.
type WebFetchTool struct {
	client   *http.Client
	maxBytes int64
}

// NewWebFetchTool creates a web_fetch tool with the given limits.
func NewWebFetchTool(cfg WebFetchConfig) *WebFetchTool {
	maxBytes := int64(cfg.MaxResponseBytes)
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebFetchTool{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch a public HTTP(S) URL and return its body, truncated to a byte limit."
}

func (t *WebFetchTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Absolute http(s) URL to fetch.",
			},
			"method": map[string]interface{}{
				"type":        "string",
				"description": "HTTP method (default GET).",
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *WebFetchTool) Execute(ctx context.Context, params json.RawMessage) (core.ToolResult, error) {
	var input struct {
		URL    string `json:"url"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.URL) == "" {
		return toolError("url is required"), nil
	}

	parsed, err := url.Parse(input.URL)
	if err != nil {
		return toolError(fmt.Sprintf("invalid url: %v", err)), nil
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return toolError(fmt.Sprintf("unsupported scheme: %s", parsed.Scheme)), nil
	}
	if err := ssrf.ValidatePublicHostname(parsed.Hostname()); err != nil {
		return toolError(err.Error()), nil
	}

	method := input.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, input.URL, nil)
	if err != nil {
		return toolError(fmt.Sprintf("build request: %v", err)), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return toolError(fmt.Sprintf("fetch: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes))
	if err != nil {
		return toolError(fmt.Sprintf("read response: %v", err)), nil
	}

	result := map[string]interface{}{
		"url":         input.URL,
		"status_code": resp.StatusCode,
		"body":        string(body),
		"truncated":   int64(len(body)) == t.maxBytes,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return core.ToolResult{Content: string(payload)}, nil
}
